package session

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/negotiate"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/psk"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// ClientHandshake opens a direct session: HELLO, suite negotiation, then
// the sender setup for opts.Mode. The client sends its public key when the
// mode authenticates it, the PSK id when the mode uses one, and finally
// the encapsulated key. The returned session sends.
func ClientHandshake(conn *protocol.Conn, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	mode, err := agility.ParseMode(uint8(opts.Mode))
	if err != nil {
		return nil, err
	}

	hello := protocol.Hello{Role: protocol.RoleClient, Mode: uint8(mode), PairID: opts.PairID, ParticipantID: opts.ParticipantID}
	if err := conn.SendHello(hello); err != nil {
		return nil, err
	}
	agreement, err := negotiate.NewInitiator(conn, opts.Catalog).Run()
	if err != nil {
		return nil, err
	}
	cs := agreement.Suite
	jww.DEBUG.Printf("client: negotiated %s, mode %s", cs, mode)

	sm := agility.SenderMode{Kind: mode}
	var kp agility.KeyPair
	if mode.Authenticated() {
		if kp, err = agility.GenerateKeyPair(cs.KEM, opts.Rand); err != nil {
			return nil, conn.Fail(err)
		}
		sm.SenderKey = &kp
	}
	if mode.UsesPSK() {
		if sm.PSK, err = opts.PSKs.Lookup(opts.PSKID, cs.KDF); err != nil {
			return nil, conn.Fail(err)
		}
	}
	enc, ctx, err := agility.SetupSender(cs, sm, agreement.PeerKey, opts.Info, opts.Rand)
	if err != nil {
		return nil, conn.Fail(err)
	}

	if mode.Authenticated() {
		if err := conn.SendBytes(protocol.PacketPublicKey, kp.Public.Bytes); err != nil {
			return nil, err
		}
	}
	if mode.UsesPSK() {
		if err := conn.SendBytes(protocol.PacketPSKID, sm.PSK.ID); err != nil {
			return nil, err
		}
	}
	if err := conn.SendBytes(protocol.PacketEncappedKey, enc.Bytes); err != nil {
		return nil, err
	}
	return newSendingSession(conn, protocol.RoleClient, mode, ctx, opts), nil
}

// ServerHandshake answers a direct client whose HELLO has already been
// read. The returned session receives.
func ServerHandshake(conn *protocol.Conn, hello protocol.Hello, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	if hello.Role != protocol.RoleClient {
		return nil, conn.Fail(errors.Wrapf(ErrUnexpectedRole, "%s on a direct session", hello.Role))
	}
	mode, err := agility.ParseMode(hello.Mode)
	if err != nil {
		return nil, conn.Fail(err)
	}

	cs, kp, err := negotiate.NewResponder(conn, opts.Catalog, opts.Policy, opts.Rand).Run()
	if err != nil {
		return nil, err
	}
	jww.DEBUG.Printf("server: negotiated %s, mode %s", cs, mode)

	want := []protocol.PacketID{protocol.PacketEncappedKey}
	if mode.Authenticated() {
		want = append(want, protocol.PacketPublicKey)
	}
	if mode.UsesPSK() {
		want = append(want, protocol.PacketPSKID)
	}
	ps, err := collect(conn, want...)
	if err != nil {
		return nil, conn.Fail(err)
	}

	rm := agility.ReceiverMode{Kind: mode}
	if mode.Authenticated() {
		b, err := ps.bytes(protocol.PacketPublicKey)
		if err != nil {
			return nil, conn.Fail(err)
		}
		pub, err := agility.ParsePublicKey(cs.KEM, b)
		if err != nil {
			return nil, conn.Fail(err)
		}
		rm.SenderPublic = &pub
	}
	if mode.UsesPSK() {
		if rm.PSK, err = lookupPSK(ps, opts.PSKs, cs.KDF); err != nil {
			return nil, conn.Fail(err)
		}
	}
	enc, err := ps.bytes(protocol.PacketEncappedKey)
	if err != nil {
		return nil, conn.Fail(err)
	}
	ctx, err := agility.SetupReceiver(cs, rm, kp, agility.EncappedKey{KEM: cs.KEM, Bytes: enc}, opts.Info)
	if err != nil {
		return nil, conn.Fail(err)
	}
	return newReceivingSession(conn, protocol.RoleClient, mode, ctx, opts), nil
}

func lookupPSK(ps packets, table psk.Lookup, kdf suite.KdfID) (psk.Bundle, error) {
	b, err := ps.bytes(protocol.PacketPSKID)
	if err != nil {
		return psk.Bundle{}, err
	}
	id, err := psk.ParseID(b)
	if err != nil {
		return psk.Bundle{}, err
	}
	return table.Lookup(id, kdf)
}
