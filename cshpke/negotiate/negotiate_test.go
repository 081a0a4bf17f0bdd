package negotiate

import (
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

func connPair(t *testing.T) (*protocol.Conn, *protocol.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return protocol.NewConn(a), protocol.NewConn(b)
}

type responderResult struct {
	suite suite.CipherSuite
	kp    agility.KeyPair
	err   error
}

func runResponder(r *Responder) <-chan responderResult {
	ch := make(chan responderResult, 1)
	go func() {
		cs, kp, err := r.Run()
		ch <- responderResult{cs, kp, err}
	}()
	return ch
}

func TestNegotiationSelectsCommonSuite(t *testing.T) {
	client, server := connPair(t)
	serverCatalog := suite.Catalog{
		KEMs:  []suite.KemID{suite.KemDhP256HkdfSha256},
		KDFs:  []suite.KdfID{suite.KdfHkdfSha384},
		AEADs: []suite.AeadID{suite.AeadChaCha20Poly1305},
	}
	responder := NewResponder(server, serverCatalog, PolicyResponderPreference, nil)
	resCh := runResponder(responder)

	initiator := NewInitiator(client, suite.Default())
	agreement, err := initiator.Run()
	require.NoError(t, err)
	res := <-resCh
	require.NoError(t, res.err)

	want := suite.CipherSuite{KEM: suite.KemDhP256HkdfSha256, KDF: suite.KdfHkdfSha384, AEAD: suite.AeadChaCha20Poly1305}
	require.Equal(t, want, agreement.Suite)
	require.Equal(t, want, res.suite)
	require.Equal(t, res.kp.Public, agreement.PeerKey)
	require.Len(t, agreement.PeerKey.Bytes, 65)
	require.Equal(t, StateDone, initiator.State())
	require.Equal(t, StateDone, responder.State())
	require.Equal(t, suite.Default(), responder.Offer())
}

func TestNegotiationFailsWithoutOverlap(t *testing.T) {
	client, server := connPair(t)
	serverCatalog := suite.Default()
	serverCatalog.AEADs = []suite.AeadID{suite.AeadAesGcm256}
	clientCatalog := suite.Default()
	clientCatalog.AEADs = []suite.AeadID{suite.AeadAesGcm128}

	responder := NewResponder(server, serverCatalog, PolicyResponderPreference, nil)
	resCh := runResponder(responder)

	initiator := NewInitiator(client, clientCatalog)
	_, err := initiator.Run()
	require.True(t, errors.Is(err, ErrNegotiationFailed), "initiator: %v", err)

	res := <-resCh
	require.True(t, errors.Is(res.err, ErrNegotiationFailed), "responder: %v", res.err)
	require.Equal(t, StateAborted, initiator.State())
	require.Equal(t, StateAborted, responder.State())
}

func TestInitiatorBreakWhileAdvertising(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	// The responder refuses the very first offered id.
	go func() {
		if _, err := protocol.ReadPacket(b); err != nil {
			return
		}
		_, _ = b.Write([]byte{byte(protocol.PacketBreakConnection)})
	}()

	initiator := NewInitiator(protocol.NewConn(a), suite.Default())
	_, err := initiator.Run()
	require.True(t, errors.Is(err, ErrNegotiationFailed), "initiator: %v", err)
	require.Equal(t, StateAborted, initiator.State())
}

func TestInitiatorAcceptsRepliesInAnyOrder(t *testing.T) {
	client, server := connPair(t)
	kp, err := agility.GenerateKeyPair(suite.KemX25519HkdfSha256, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		for {
			p, err := server.Receive()
			if err != nil {
				done <- err
				return
			}
			if p.ID == protocol.PacketFinish {
				break
			}
		}
		if err := server.SendBytes(protocol.PacketPublicKey, kp.Public.Bytes); err != nil {
			done <- err
			return
		}
		if err := server.SendUint16(protocol.PacketAEAD, uint16(suite.AeadAesGcm256)); err != nil {
			done <- err
			return
		}
		if err := server.SendUint16(protocol.PacketKDF, uint16(suite.KdfHkdfSha512)); err != nil {
			done <- err
			return
		}
		done <- server.SendUint16(protocol.PacketKEM, uint16(suite.KemX25519HkdfSha256))
	}()

	agreement, err := NewInitiator(client, suite.Default()).Run()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, suite.CipherSuite{KEM: suite.KemX25519HkdfSha256, KDF: suite.KdfHkdfSha512, AEAD: suite.AeadAesGcm256}, agreement.Suite)
	require.Equal(t, kp.Public, agreement.PeerKey)
}

func TestInitiatorRejectsUnofferedSelection(t *testing.T) {
	client, server := connPair(t)

	done := make(chan error, 1)
	go func() {
		for {
			p, err := server.Receive()
			if err != nil {
				done <- err
				return
			}
			if p.ID == protocol.PacketFinish {
				break
			}
		}
		if err := server.SendUint16(protocol.PacketKEM, uint16(suite.KemX448HkdfSha512)); err != nil {
			done <- err
			return
		}
		_, err := server.Receive()
		done <- err
	}()

	_, err := NewInitiator(client, suite.Default()).Run()
	require.True(t, errors.Is(err, ErrNegotiationFailed), "got %v", err)
	require.True(t, errors.Is(<-done, protocol.ErrConnectionBroken))
}

func TestResponderAcceptsMultiValuePackets(t *testing.T) {
	client, server := connPair(t)
	responder := NewResponder(server, suite.Default(), PolicyResponderPreference, nil)
	resCh := runResponder(responder)

	require.NoError(t, client.Send(protocol.NewUint16Packet(protocol.PacketKEM, uint16(suite.KemDhP256HkdfSha256), uint16(suite.KemX25519HkdfSha256))))
	require.NoError(t, client.Send(protocol.NewUint16Packet(protocol.PacketKDF, uint16(suite.KdfHkdfSha512))))
	require.NoError(t, client.Send(protocol.NewUint16Packet(protocol.PacketAEAD, uint16(suite.AeadChaCha20Poly1305), uint16(suite.AeadAesGcm256))))
	require.NoError(t, client.Send(protocol.Signal(protocol.PacketFinish)))

	for i := 0; i < 4; i++ {
		_, err := client.Receive()
		require.NoError(t, err)
	}
	res := <-resCh
	require.NoError(t, res.err)
	require.Equal(t, suite.CipherSuite{KEM: suite.KemX25519HkdfSha256, KDF: suite.KdfHkdfSha512, AEAD: suite.AeadAesGcm256}, res.suite)
}

func TestResponderRejectsUnknownCode(t *testing.T) {
	client, server := connPair(t)
	responder := NewResponder(server, suite.Default(), PolicyResponderPreference, nil)
	resCh := runResponder(responder)

	require.NoError(t, client.Send(protocol.NewUint16Packet(protocol.PacketKEM, 0x7777)))
	_, err := client.Receive()
	require.True(t, errors.Is(err, protocol.ErrConnectionBroken))

	res := <-resCh
	require.True(t, errors.Is(res.err, suite.ErrUnknownAlgorithm))
}

func TestSelectPolicies(t *testing.T) {
	offer := suite.Catalog{
		KEMs:  []suite.KemID{suite.KemX25519HkdfSha256, suite.KemDhP256HkdfSha256},
		KDFs:  []suite.KdfID{suite.KdfHkdfSha256, suite.KdfHkdfSha384, suite.KdfHkdfSha512},
		AEADs: []suite.AeadID{suite.AeadAesGcm128, suite.AeadChaCha20Poly1305},
	}
	local := suite.Catalog{
		KEMs:  []suite.KemID{suite.KemDhP256HkdfSha256, suite.KemX25519HkdfSha256},
		KDFs:  []suite.KdfID{suite.KdfHkdfSha384, suite.KdfHkdfSha256},
		AEADs: []suite.AeadID{suite.AeadChaCha20Poly1305, suite.AeadAesGcm128},
	}

	cs, err := Select(offer, local, PolicyResponderPreference)
	require.NoError(t, err)
	require.Equal(t, suite.CipherSuite{KEM: suite.KemDhP256HkdfSha256, KDF: suite.KdfHkdfSha384, AEAD: suite.AeadChaCha20Poly1305}, cs)

	cs, err = Select(offer, local, PolicyLastOfferedMatch)
	require.NoError(t, err)
	require.Equal(t, suite.CipherSuite{KEM: suite.KemDhP256HkdfSha256, KDF: suite.KdfHkdfSha384, AEAD: suite.AeadChaCha20Poly1305}, cs)

	offer.KDFs = []suite.KdfID{suite.KdfHkdfSha256, suite.KdfHkdfSha384}
	local.KDFs = []suite.KdfID{suite.KdfHkdfSha256, suite.KdfHkdfSha384}
	cs, err = Select(offer, local, PolicyResponderPreference)
	require.NoError(t, err)
	require.Equal(t, suite.KdfHkdfSha256, cs.KDF)
	cs, err = Select(offer, local, PolicyLastOfferedMatch)
	require.NoError(t, err)
	require.Equal(t, suite.KdfHkdfSha384, cs.KDF)

	offer.AEADs = nil
	_, err = Select(offer, local, PolicyResponderPreference)
	require.True(t, errors.Is(err, ErrNegotiationFailed))
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("last-offered-match")
	require.NoError(t, err)
	require.Equal(t, PolicyLastOfferedMatch, p)
	p, err = PolicyByName("")
	require.NoError(t, err)
	require.Equal(t, PolicyResponderPreference, p)
	_, err = PolicyByName("random")
	require.Error(t, err)
}
