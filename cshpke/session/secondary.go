package session

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/keyschedule"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/psk"
)

// SecondaryClientHandshake opens a secondary session to a secondary server
// of the same pairing, using the role key held in d.
//
// The server speaks first with its PUBKEY. The client answers with its own
// PUBKEY, a fresh KEY_REFRESH input and the ENCKEY of an AuthPSK setup
// whose PSK is the session key derived from the role key, the key refresh
// input and opts.FiveTuple. The returned session sends.
func SecondaryClientHandshake(conn *protocol.Conn, d *Delegation, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	if len(opts.ParticipantID) == 0 {
		return nil, errors.Wrap(ErrMissingLabel, "participant id")
	}
	cs := d.Suite

	hello := protocol.Hello{Role: protocol.RoleSecondaryClient, Mode: uint8(agility.ModeAuthPSK), PairID: d.PairID, ParticipantID: opts.ParticipantID}
	if err := conn.SendHello(hello); err != nil {
		return nil, err
	}
	p, err := conn.ReceiveExpected(protocol.PacketPublicKey)
	if err != nil {
		return nil, conn.Fail(err)
	}
	b, err := p.RequireBytes()
	if err != nil {
		return nil, conn.Fail(err)
	}
	serverKey, err := agility.ParsePublicKey(cs.KEM, b)
	if err != nil {
		return nil, conn.Fail(err)
	}

	kp, err := agility.GenerateKeyPair(cs.KEM, opts.Rand)
	if err != nil {
		return nil, conn.Fail(err)
	}
	kri, err := opts.keyRefreshInput()
	if err != nil {
		return nil, conn.Fail(err)
	}
	sessionKey, err := secondarySessionKey(d, opts.ParticipantID, kri, opts.FiveTuple)
	if err != nil {
		return nil, conn.Fail(err)
	}
	mode := agility.AuthPSKSender(kp, psk.Bundle{PSK: sessionKey, ID: d.PSKID})
	enc, ctx, err := agility.SetupSender(cs, mode, serverKey, opts.Info, opts.Rand)
	keyschedule.Wipe(sessionKey)
	if err != nil {
		return nil, conn.Fail(err)
	}

	err = sendAll(conn,
		protocol.NewBytesPacket(protocol.PacketPublicKey, kp.Public.Bytes),
		protocol.NewBytesPacket(protocol.PacketKeyRefresh, kri),
		protocol.NewBytesPacket(protocol.PacketEncappedKey, enc.Bytes),
	)
	if err != nil {
		return nil, conn.Fail(err)
	}
	jww.DEBUG.Printf("secondary client %x: session open on %q with %s", opts.ParticipantID, d.PairID, cs)
	return newSendingSession(conn, protocol.RoleSecondaryClient, agility.ModeAuthPSK, ctx, opts), nil
}

// SecondaryServerHandshake answers a secondary client whose HELLO has
// already been read, using the pair key held in d. The returned session
// receives.
func SecondaryServerHandshake(conn *protocol.Conn, hello protocol.Hello, d *Delegation, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	if hello.Role != protocol.RoleSecondaryClient {
		return nil, conn.Fail(errors.Wrapf(ErrUnexpectedRole, "%s on a secondary session", hello.Role))
	}
	if len(hello.ParticipantID) == 0 {
		return nil, conn.Fail(errors.Wrap(ErrMissingLabel, "participant id"))
	}
	cs := d.Suite

	kp, err := agility.GenerateKeyPair(cs.KEM, opts.Rand)
	if err != nil {
		return nil, conn.Fail(err)
	}
	if err := conn.SendBytes(protocol.PacketPublicKey, kp.Public.Bytes); err != nil {
		return nil, conn.Fail(err)
	}
	ps, err := collect(conn, protocol.PacketPublicKey, protocol.PacketKeyRefresh, protocol.PacketEncappedKey)
	if err != nil {
		return nil, conn.Fail(err)
	}

	b, err := ps.bytes(protocol.PacketPublicKey)
	if err != nil {
		return nil, conn.Fail(err)
	}
	clientKey, err := agility.ParsePublicKey(cs.KEM, b)
	if err != nil {
		return nil, conn.Fail(err)
	}
	kri, err := ps.bytes(protocol.PacketKeyRefresh)
	if err != nil {
		return nil, conn.Fail(err)
	}
	enc, err := ps.bytes(protocol.PacketEncappedKey)
	if err != nil {
		return nil, conn.Fail(err)
	}

	sessionKey, err := secondarySessionKey(d, hello.ParticipantID, kri, opts.FiveTuple)
	if err != nil {
		return nil, conn.Fail(err)
	}
	mode := agility.AuthPSKReceiver(clientKey, psk.Bundle{PSK: sessionKey, ID: d.PSKID})
	ctx, err := agility.SetupReceiver(cs, mode, kp, agility.EncappedKey{KEM: cs.KEM, Bytes: enc}, opts.Info)
	keyschedule.Wipe(sessionKey)
	if err != nil {
		return nil, conn.Fail(err)
	}
	jww.DEBUG.Printf("secondary server: session open with %x on %q", hello.ParticipantID, d.PairID)
	return newReceivingSession(conn, protocol.RoleSecondaryClient, agility.ModeAuthPSK, ctx, opts), nil
}

// secondarySessionKey walks the delegated tier of the hierarchy down to
// the session key for participantID.
func secondarySessionKey(d *Delegation, participantID, kri, fiveTuple []byte) ([]byte, error) {
	role, err := d.RoleKey(participantID)
	if err != nil {
		return nil, err
	}
	m, err := keyschedule.DeriveFromRole(role, keyschedule.Labels{
		ParticipantID:   participantID,
		KeyRefreshInput: kri,
		FiveTuple:       fiveTuple,
	}, d.Suite.KDF.OutputLen())
	if err != nil {
		keyschedule.Wipe(role)
		return nil, err
	}
	sessionKey := append([]byte(nil), m.Session...)
	m.Wipe()
	return sessionKey, nil
}
