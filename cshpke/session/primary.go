package session

import (
	"crypto/subtle"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/keyschedule"
	"github.com/TheusHen/cshpke/cshpke/negotiate"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/psk"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// PrimaryClientHandshake pairs with a primary server under opts.PairID.
//
// After negotiation the client runs an AuthPSK primary setup against the
// server's fresh key and sends PUBKEY, PSK_ID and ENCKEY, followed by a
// TAGBYTES confirmation of the pair key. The server answers FINISH once
// its own pair key matches. The returned delegation holds the pair key.
func PrimaryClientHandshake(conn *protocol.Conn, opts Options) (*Delegation, error) {
	opts = opts.withDefaults()
	if len(opts.PairID) == 0 {
		return nil, errors.Wrap(ErrMissingLabel, "pair id")
	}

	hello := protocol.Hello{Role: protocol.RolePrimaryClient, Mode: uint8(agility.ModeAuthPSK), PairID: opts.PairID, ParticipantID: opts.ParticipantID}
	if err := conn.SendHello(hello); err != nil {
		return nil, err
	}
	agreement, err := negotiate.NewInitiator(conn, opts.Catalog).Run()
	if err != nil {
		return nil, err
	}
	cs := agreement.Suite

	kp, err := agility.GenerateKeyPair(cs.KEM, opts.Rand)
	if err != nil {
		return nil, conn.Fail(err)
	}
	bundle, err := opts.PSKs.Lookup(opts.PSKID, cs.KDF)
	if err != nil {
		return nil, conn.Fail(err)
	}
	enc, root, err := agility.SetupPrimarySender(cs, agility.AuthPSKSender(kp, bundle), agreement.PeerKey, opts.Info, opts.Rand)
	if err != nil {
		return nil, conn.Fail(err)
	}
	pair, err := keyschedule.PairKey(root, opts.PairID, cs.KDF.OutputLen())
	keyschedule.Wipe(root)
	if err != nil {
		return nil, conn.Fail(err)
	}
	tag, err := keyschedule.Confirmation(pair)
	if err != nil {
		keyschedule.Wipe(pair)
		return nil, conn.Fail(err)
	}

	err = sendAll(conn,
		protocol.NewBytesPacket(protocol.PacketPublicKey, kp.Public.Bytes),
		protocol.NewBytesPacket(protocol.PacketPSKID, bundle.ID),
		protocol.NewBytesPacket(protocol.PacketEncappedKey, enc.Bytes),
		protocol.NewBytesPacket(protocol.PacketTag, tag),
	)
	if err != nil {
		keyschedule.Wipe(pair)
		return nil, conn.Fail(err)
	}
	if _, err := conn.ReceiveExpected(protocol.PacketFinish); err != nil {
		keyschedule.Wipe(pair)
		if errors.Is(err, protocol.ErrConnectionBroken) {
			return nil, errors.Wrap(ErrConfirmation, "primary server rejected the pairing")
		}
		return nil, conn.Fail(err)
	}

	jww.DEBUG.Printf("primary client: paired %q with %s", opts.PairID, cs)
	return &Delegation{
		PairID: append([]byte(nil), opts.PairID...),
		Suite:  cs,
		Tier:   TierPair,
		Secret: pair,
		PSKID:  bundle.ID,
	}, nil
}

// PrimaryServerHandshake answers a primary client whose HELLO has already
// been read and returns the pairing's delegation.
func PrimaryServerHandshake(conn *protocol.Conn, hello protocol.Hello, opts Options) (*Delegation, error) {
	opts = opts.withDefaults()
	if hello.Role != protocol.RolePrimaryClient {
		return nil, conn.Fail(errors.Wrapf(ErrUnexpectedRole, "%s on a pairing", hello.Role))
	}
	if len(hello.PairID) == 0 {
		return nil, conn.Fail(errors.Wrap(ErrMissingLabel, "pair id"))
	}

	cs, kp, err := negotiate.NewResponder(conn, opts.Catalog, opts.Policy, opts.Rand).Run()
	if err != nil {
		return nil, err
	}
	ps, err := collect(conn, protocol.PacketPublicKey, protocol.PacketPSKID, protocol.PacketEncappedKey, protocol.PacketTag)
	if err != nil {
		return nil, conn.Fail(err)
	}

	pair, bundle, err := primaryPairKey(ps, cs, kp, hello.PairID, opts)
	if err != nil {
		return nil, conn.Fail(err)
	}
	if err := conn.Send(protocol.Signal(protocol.PacketFinish)); err != nil {
		keyschedule.Wipe(pair)
		return nil, err
	}

	jww.DEBUG.Printf("primary server: paired %q with %s", hello.PairID, cs)
	return &Delegation{
		PairID: append([]byte(nil), hello.PairID...),
		Suite:  cs,
		Tier:   TierPair,
		Secret: pair,
		PSKID:  bundle.ID,
	}, nil
}

// primaryPairKey runs the receiver side of the primary setup and checks
// the client's confirmation tag.
func primaryPairKey(ps packets, cs suite.CipherSuite, kp agility.KeyPair, pairID []byte, opts Options) ([]byte, psk.Bundle, error) {
	b, err := ps.bytes(protocol.PacketPublicKey)
	if err != nil {
		return nil, psk.Bundle{}, err
	}
	pub, err := agility.ParsePublicKey(cs.KEM, b)
	if err != nil {
		return nil, psk.Bundle{}, err
	}
	bundle, err := lookupPSK(ps, opts.PSKs, cs.KDF)
	if err != nil {
		return nil, psk.Bundle{}, err
	}
	enc, err := ps.bytes(protocol.PacketEncappedKey)
	if err != nil {
		return nil, psk.Bundle{}, err
	}
	tag, err := ps.bytes(protocol.PacketTag)
	if err != nil {
		return nil, psk.Bundle{}, err
	}

	root, err := agility.SetupPrimaryReceiver(cs, agility.AuthPSKReceiver(pub, bundle), kp, agility.EncappedKey{KEM: cs.KEM, Bytes: enc}, opts.Info)
	if err != nil {
		return nil, psk.Bundle{}, err
	}
	pair, err := keyschedule.PairKey(root, pairID, cs.KDF.OutputLen())
	keyschedule.Wipe(root)
	if err != nil {
		return nil, psk.Bundle{}, err
	}
	want, err := keyschedule.Confirmation(pair)
	if err != nil {
		keyschedule.Wipe(pair)
		return nil, psk.Bundle{}, err
	}
	if subtle.ConstantTimeCompare(want, tag) != 1 {
		keyschedule.Wipe(pair)
		return nil, psk.Bundle{}, ErrConfirmation
	}
	return pair, bundle, nil
}

// sendAll sends ps in order, stopping at the first failure.
func sendAll(conn *protocol.Conn, ps ...protocol.Packet) error {
	for _, p := range ps {
		if err := conn.Send(p); err != nil {
			return err
		}
	}
	return nil
}
