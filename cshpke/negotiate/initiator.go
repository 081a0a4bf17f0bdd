package negotiate

import (
	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// Initiator drives the client side of a negotiation.
type Initiator struct {
	conn    *protocol.Conn
	catalog suite.Catalog
	state   State
}

func NewInitiator(conn *protocol.Conn, catalog suite.Catalog) *Initiator {
	return &Initiator{conn: conn, catalog: catalog.Clone()}
}

func (i *Initiator) State() State { return i.state }

// Run advertises the catalog and waits for the responder's selection.
func (i *Initiator) Run() (Agreement, error) {
	if err := i.catalog.Validate(); err != nil {
		i.state = StateAborted
		return Agreement{}, err
	}

	i.state = StateAdvertising
	if err := i.advertise(); err != nil {
		return Agreement{}, i.fail(err)
	}

	i.state = StateAwaitingSelection
	a, err := i.awaitSelection()
	if err != nil {
		return Agreement{}, i.fail(err)
	}
	i.state = StateDone
	return a, nil
}

// fail reports a responder abort as a failed negotiation and aborts the
// connection for anything else.
func (i *Initiator) fail(err error) error {
	during := i.state
	i.state = StateAborted
	if errors.Is(err, protocol.ErrConnectionBroken) {
		return errors.Wrapf(ErrNegotiationFailed, "responder broke the connection while %s", during)
	}
	return i.conn.Fail(err)
}

func (i *Initiator) advertise() error {
	for _, k := range i.catalog.KEMs {
		if err := i.conn.SendUint16(protocol.PacketKEM, uint16(k)); err != nil {
			return err
		}
	}
	for _, k := range i.catalog.KDFs {
		if err := i.conn.SendUint16(protocol.PacketKDF, uint16(k)); err != nil {
			return err
		}
	}
	for _, a := range i.catalog.AEADs {
		if err := i.conn.SendUint16(protocol.PacketAEAD, uint16(a)); err != nil {
			return err
		}
	}
	return i.conn.Send(protocol.Signal(protocol.PacketFinish))
}

// awaitSelection accepts the four reply packets in any order.
func (i *Initiator) awaitSelection() (Agreement, error) {
	var (
		cs                         suite.CipherSuite
		haveKEM, haveKDF, haveAEAD bool
		pub                        []byte
	)
	for !haveKEM || !haveKDF || !haveAEAD || pub == nil {
		p, err := i.conn.Receive()
		if err != nil {
			return Agreement{}, err
		}
		switch p.ID {
		case protocol.PacketKEM:
			if haveKEM {
				return Agreement{}, duplicate(p.ID)
			}
			v, err := p.Uint16()
			if err != nil {
				return Agreement{}, err
			}
			if cs.KEM, err = suite.ParseKemID(v); err != nil {
				return Agreement{}, err
			}
			if !i.catalog.SupportsKEM(cs.KEM) {
				return Agreement{}, errors.Wrapf(ErrNegotiationFailed, "responder selected unoffered %s", cs.KEM)
			}
			haveKEM = true
		case protocol.PacketKDF:
			if haveKDF {
				return Agreement{}, duplicate(p.ID)
			}
			v, err := p.Uint16()
			if err != nil {
				return Agreement{}, err
			}
			if cs.KDF, err = suite.ParseKdfID(v); err != nil {
				return Agreement{}, err
			}
			if !i.catalog.SupportsKDF(cs.KDF) {
				return Agreement{}, errors.Wrapf(ErrNegotiationFailed, "responder selected unoffered %s", cs.KDF)
			}
			haveKDF = true
		case protocol.PacketAEAD:
			if haveAEAD {
				return Agreement{}, duplicate(p.ID)
			}
			v, err := p.Uint16()
			if err != nil {
				return Agreement{}, err
			}
			if cs.AEAD, err = suite.ParseAeadID(v); err != nil {
				return Agreement{}, err
			}
			if !i.catalog.SupportsAEAD(cs.AEAD) {
				return Agreement{}, errors.Wrapf(ErrNegotiationFailed, "responder selected unoffered %s", cs.AEAD)
			}
			haveAEAD = true
		case protocol.PacketPublicKey:
			if pub != nil {
				return Agreement{}, duplicate(p.ID)
			}
			if pub, err = p.RequireBytes(); err != nil {
				return Agreement{}, err
			}
		default:
			return Agreement{}, errors.Wrapf(protocol.ErrUnexpectedPacket, "%s during negotiation", p.ID)
		}
	}

	// The key can only be checked once the KEM is known.
	pk, err := agility.ParsePublicKey(cs.KEM, pub)
	if err != nil {
		return Agreement{}, err
	}
	return Agreement{Suite: cs, PeerKey: pk}, nil
}
