package negotiate

import (
	"io"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// Responder drives the server side of a negotiation.
type Responder struct {
	conn    *protocol.Conn
	catalog suite.Catalog
	policy  Policy
	rand    io.Reader
	state   State
	offer   suite.Catalog
}

// NewResponder returns a responder that selects from catalog under policy
// and draws its key pair from rnd (crypto/rand when nil).
func NewResponder(conn *protocol.Conn, catalog suite.Catalog, policy Policy, rnd io.Reader) *Responder {
	return &Responder{conn: conn, catalog: catalog.Clone(), policy: policy, rand: rnd}
}

func (r *Responder) State() State { return r.state }

// Offer is what the initiator advertised, valid once collection finished.
func (r *Responder) Offer() suite.Catalog { return r.offer.Clone() }

// Run collects the offer, selects a suite and answers with it and a fresh
// key pair's public half.
func (r *Responder) Run() (suite.CipherSuite, agility.KeyPair, error) {
	if err := r.catalog.Validate(); err != nil {
		r.state = StateAborted
		return suite.CipherSuite{}, agility.KeyPair{}, r.conn.Fail(err)
	}

	r.state = StateCollectingOffer
	if err := r.collect(); err != nil {
		r.state = StateAborted
		return suite.CipherSuite{}, agility.KeyPair{}, r.conn.Fail(err)
	}

	r.state = StateSelecting
	cs, err := Select(r.offer, r.catalog, r.policy)
	if err != nil {
		r.state = StateAborted
		return suite.CipherSuite{}, agility.KeyPair{}, r.conn.Fail(err)
	}
	kp, err := agility.GenerateKeyPair(cs.KEM, r.rand)
	if err != nil {
		r.state = StateAborted
		return suite.CipherSuite{}, agility.KeyPair{}, r.conn.Fail(err)
	}

	r.state = StateResponding
	if err := r.respond(cs, kp); err != nil {
		r.state = StateAborted
		return suite.CipherSuite{}, agility.KeyPair{}, err
	}
	r.state = StateDone
	return cs, kp, nil
}

// collect accumulates offered ids until FINISH. A packet may carry more
// than one id.
func (r *Responder) collect() error {
	r.offer = suite.Catalog{}
	for {
		p, err := r.conn.Receive()
		if err != nil {
			return err
		}
		if p.ID == protocol.PacketFinish {
			return nil
		}
		switch p.ID {
		case protocol.PacketKEM, protocol.PacketKDF, protocol.PacketAEAD:
		default:
			return errors.Wrapf(protocol.ErrUnexpectedPacket, "%s in offer", p.ID)
		}
		vals, err := p.Uint16s()
		if err != nil {
			return err
		}
		for _, v := range vals {
			switch p.ID {
			case protocol.PacketKEM:
				id, err := suite.ParseKemID(v)
				if err != nil {
					return err
				}
				r.offer.KEMs = append(r.offer.KEMs, id)
			case protocol.PacketKDF:
				id, err := suite.ParseKdfID(v)
				if err != nil {
					return err
				}
				r.offer.KDFs = append(r.offer.KDFs, id)
			case protocol.PacketAEAD:
				id, err := suite.ParseAeadID(v)
				if err != nil {
					return err
				}
				r.offer.AEADs = append(r.offer.AEADs, id)
			}
		}
	}
}

func (r *Responder) respond(cs suite.CipherSuite, kp agility.KeyPair) error {
	if err := r.conn.SendUint16(protocol.PacketKEM, uint16(cs.KEM)); err != nil {
		return err
	}
	if err := r.conn.SendUint16(protocol.PacketKDF, uint16(cs.KDF)); err != nil {
		return err
	}
	if err := r.conn.SendUint16(protocol.PacketAEAD, uint16(cs.AEAD)); err != nil {
		return err
	}
	return r.conn.SendBytes(protocol.PacketPublicKey, kp.Public.Bytes)
}
