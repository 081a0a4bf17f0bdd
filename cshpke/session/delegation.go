package session

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/keyschedule"
	"github.com/TheusHen/cshpke/cshpke/negotiate"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// Deliver answers a secondary node's delegation request. A secondary
// client gets the role key for the participant id in its HELLO; a
// secondary server gets the pair key itself. The suite goes out as KEM,
// KDF and AEAD packets, followed by SHARED_SECRET and PSK_ID.
func Deliver(conn *protocol.Conn, hello protocol.Hello, d *Delegation) error {
	var (
		secret []byte
		err    error
	)
	switch hello.Role {
	case protocol.RoleSecondaryClient:
		if len(hello.ParticipantID) == 0 {
			return conn.Fail(errors.Wrap(ErrMissingLabel, "participant id"))
		}
		secret, err = d.RoleKey(hello.ParticipantID)
	case protocol.RoleSecondaryServer:
		if d.Tier != TierPair {
			return conn.Fail(errors.Wrapf(ErrUnexpectedRole, "%s cannot be served from a %s delegation", hello.Role, d.Tier))
		}
		secret = append([]byte(nil), d.Secret...)
	default:
		return conn.Fail(errors.Wrapf(ErrUnexpectedRole, "%s asked for a delegation", hello.Role))
	}
	if err != nil {
		return conn.Fail(err)
	}
	defer keyschedule.Wipe(secret)

	err = sendAll(conn,
		protocol.NewUint16Packet(protocol.PacketKEM, uint16(d.Suite.KEM)),
		protocol.NewUint16Packet(protocol.PacketKDF, uint16(d.Suite.KDF)),
		protocol.NewUint16Packet(protocol.PacketAEAD, uint16(d.Suite.AEAD)),
		protocol.NewBytesPacket(protocol.PacketSharedSecret, secret),
		protocol.NewBytesPacket(protocol.PacketPSKID, d.PSKID),
	)
	if err != nil {
		return conn.Fail(err)
	}
	jww.DEBUG.Printf("delegated %q to %s %x", d.PairID, hello.Role, hello.ParticipantID)
	return nil
}

// RequestDelegation asks a primary node for this secondary node's share
// of the pairing named by opts.PairID. role is RoleSecondaryClient or
// RoleSecondaryServer. The delivered suite must be in opts.Catalog.
func RequestDelegation(conn *protocol.Conn, role protocol.Role, opts Options) (*Delegation, error) {
	opts = opts.withDefaults()
	tier := TierPair
	switch role {
	case protocol.RoleSecondaryClient:
		if len(opts.ParticipantID) == 0 {
			return nil, errors.Wrap(ErrMissingLabel, "participant id")
		}
		tier = TierRole
	case protocol.RoleSecondaryServer:
	default:
		return nil, errors.Wrapf(ErrUnexpectedRole, "%s cannot request a delegation", role)
	}
	if len(opts.PairID) == 0 {
		return nil, errors.Wrap(ErrMissingLabel, "pair id")
	}

	hello := protocol.Hello{Role: role, Mode: uint8(agility.ModeAuthPSK), PairID: opts.PairID, ParticipantID: opts.ParticipantID}
	if err := conn.SendHello(hello); err != nil {
		return nil, err
	}
	ps, err := collect(conn, protocol.PacketKEM, protocol.PacketKDF, protocol.PacketAEAD, protocol.PacketSharedSecret, protocol.PacketPSKID)
	if err != nil {
		return nil, conn.Fail(err)
	}
	d, err := decodeDelegation(ps, opts)
	if err != nil {
		return nil, conn.Fail(err)
	}
	d.Tier = tier
	jww.DEBUG.Printf("%s: received %s delegation for %q", role, tier, opts.PairID)
	return d, nil
}

func decodeDelegation(ps packets, opts Options) (*Delegation, error) {
	var (
		cs  suite.CipherSuite
		err error
		v   uint16
	)
	if v, err = ps.code(protocol.PacketKEM); err != nil {
		return nil, err
	}
	if cs.KEM, err = suite.ParseKemID(v); err != nil {
		return nil, err
	}
	if v, err = ps.code(protocol.PacketKDF); err != nil {
		return nil, err
	}
	if cs.KDF, err = suite.ParseKdfID(v); err != nil {
		return nil, err
	}
	if v, err = ps.code(protocol.PacketAEAD); err != nil {
		return nil, err
	}
	if cs.AEAD, err = suite.ParseAeadID(v); err != nil {
		return nil, err
	}
	if !opts.Catalog.Supports(cs) {
		return nil, errors.Wrapf(negotiate.ErrNegotiationFailed, "delegated suite %s is not supported locally", cs)
	}

	secret, err := ps.bytes(protocol.PacketSharedSecret)
	if err != nil {
		return nil, err
	}
	if len(secret) != cs.KDF.OutputLen() {
		return nil, errors.Errorf("session: delegated secret has %d bytes, %s needs %d", len(secret), cs.KDF, cs.KDF.OutputLen())
	}
	pskID, err := ps.bytes(protocol.PacketPSKID)
	if err != nil {
		return nil, err
	}
	return &Delegation{
		PairID: append([]byte(nil), opts.PairID...),
		Suite:  cs,
		Secret: secret,
		PSKID:  pskID,
	}, nil
}
