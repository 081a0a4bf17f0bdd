package session

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/negotiate"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/psk"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

func pipe(t *testing.T) (*protocol.Conn, *protocol.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return protocol.NewConn(a), protocol.NewConn(b)
}

type received struct {
	suite suite.CipherSuite
	msgs  [][]byte
	err   error
}

// serveDirect runs the server side of a direct session and drains it.
func serveDirect(conn *protocol.Conn, opts Options) <-chan received {
	out := make(chan received, 1)
	go func() {
		var r received
		defer func() { out <- r }()
		hello, err := conn.ReceiveHello()
		if err != nil {
			r.err = err
			return
		}
		sess, err := ServerHandshake(conn, hello, opts)
		if err != nil {
			r.err = err
			return
		}
		r.suite = sess.Suite()
		for {
			pt, _, err := sess.Receive()
			if err == io.EOF {
				return
			}
			if err != nil {
				r.err = err
				return
			}
			r.msgs = append(r.msgs, pt)
		}
	}()
	return out
}

var restrictedCatalog = suite.Catalog{
	KEMs:  []suite.KemID{suite.KemDhP256HkdfSha256},
	KDFs:  []suite.KdfID{suite.KdfHkdfSha384},
	AEADs: []suite.AeadID{suite.AeadChaCha20Poly1305},
}

func TestDirectSessionEveryMode(t *testing.T) {
	want := suite.CipherSuite{KEM: suite.KemDhP256HkdfSha256, KDF: suite.KdfHkdfSha384, AEAD: suite.AeadChaCha20Poly1305}
	msgs := [][]byte{[]byte("hello"), []byte("from"), []byte("the client")}

	for _, mode := range []agility.ModeKind{agility.ModeBase, agility.ModePSK, agility.ModeAuth, agility.ModeAuthPSK} {
		t.Run(mode.String(), func(t *testing.T) {
			cc, sc := pipe(t)
			done := serveDirect(sc, Options{Catalog: restrictedCatalog})

			sess, err := ClientHandshake(cc, Options{Mode: mode, PSKID: 1})
			require.NoError(t, err)
			require.Equal(t, want, sess.Suite())
			require.Equal(t, mode, sess.Mode())
			require.True(t, sess.CanSend())
			for _, m := range msgs {
				require.NoError(t, sess.Send(m, []byte("aad")))
			}
			require.NoError(t, sess.Close())

			r := <-done
			require.NoError(t, r.err)
			require.Equal(t, want, r.suite)
			require.Equal(t, msgs, r.msgs)
		})
	}
}

func TestDirectSessionDetached(t *testing.T) {
	cc, sc := pipe(t)
	done := serveDirect(sc, Options{Detached: true})

	sess, err := ClientHandshake(cc, Options{Mode: agility.ModeAuth, Detached: true})
	require.NoError(t, err)
	require.NoError(t, sess.Send([]byte("detached tag"), nil))
	require.NoError(t, sess.Close())

	r := <-done
	require.NoError(t, r.err)
	require.Equal(t, [][]byte{[]byte("detached tag")}, r.msgs)
}

func TestDirectSessionNoCommonSuite(t *testing.T) {
	cc, sc := pipe(t)
	done := serveDirect(sc, Options{Catalog: suite.Catalog{
		KEMs:  []suite.KemID{suite.KemX448HkdfSha512},
		KDFs:  []suite.KdfID{suite.KdfHkdfSha512},
		AEADs: []suite.AeadID{suite.AeadAesGcm256},
	}})

	_, err := ClientHandshake(cc, Options{})
	require.True(t, errors.Is(err, negotiate.ErrNegotiationFailed), "got %v", err)

	r := <-done
	require.True(t, errors.Is(r.err, negotiate.ErrNegotiationFailed), "got %v", r.err)
}

func TestDirectSessionUnknownPSK(t *testing.T) {
	cc, sc := pipe(t)
	done := serveDirect(sc, Options{})

	_, err := ClientHandshake(cc, Options{Mode: agility.ModePSK, PSKID: 9})
	require.True(t, errors.Is(err, psk.ErrUnknownPSK), "got %v", err)

	r := <-done
	require.True(t, errors.Is(r.err, protocol.ErrConnectionBroken), "got %v", r.err)
}

func TestSessionDirection(t *testing.T) {
	cc, sc := pipe(t)
	serverSess := make(chan *Session, 1)
	go func() {
		hello, err := sc.ReceiveHello()
		if err != nil {
			serverSess <- nil
			return
		}
		s, _ := ServerHandshake(sc, hello, Options{})
		serverSess <- s
	}()

	sess, err := ClientHandshake(cc, Options{})
	require.NoError(t, err)
	_, _, err = sess.Receive()
	require.True(t, errors.Is(err, ErrWrongDirection))

	s := <-serverSess
	require.NotNil(t, s)
	require.False(t, s.CanSend())
	require.True(t, errors.Is(s.Send([]byte("x"), nil), ErrWrongDirection))
	require.NoError(t, s.Close())
}

// pairing runs a primary pairing and returns both sides' delegations.
func pairing(t *testing.T, client, server Options) (*Delegation, *Delegation, error, error) {
	t.Helper()
	cc, sc := pipe(t)
	type result struct {
		d   *Delegation
		err error
	}
	out := make(chan result, 1)
	go func() {
		hello, err := sc.ReceiveHello()
		if err != nil {
			out <- result{err: err}
			return
		}
		d, err := PrimaryServerHandshake(sc, hello, server)
		out <- result{d, err}
	}()
	pc, err := PrimaryClientHandshake(cc, client)
	r := <-out
	return pc, r.d, err, r.err
}

// delegate serves one delegation request from primary.
func delegate(t *testing.T, primary *Delegation, role protocol.Role, opts Options) (*Delegation, error) {
	t.Helper()
	rc, pc := pipe(t)
	errCh := make(chan error, 1)
	go func() {
		hello, err := pc.ReceiveHello()
		if err != nil {
			errCh <- err
			return
		}
		errCh <- Deliver(pc, hello, primary)
	}()
	d, err := RequestDelegation(rc, role, opts)
	require.NoError(t, <-errCh)
	return d, err
}

func TestPrimaryPairing(t *testing.T) {
	opts := Options{PairID: []byte("pair-1"), PSKID: 2}
	pc, ps, cerr, serr := pairing(t, opts, opts)
	require.NoError(t, cerr)
	require.NoError(t, serr)

	require.Equal(t, pc.Suite, ps.Suite)
	require.Equal(t, pc.Secret, ps.Secret)
	require.Len(t, pc.Secret, pc.Suite.KDF.OutputLen())
	require.Equal(t, []byte{2}, pc.PSKID)
	require.Equal(t, TierPair, ps.Tier)
}

func TestPrimaryPairingRejectsMismatchedPSK(t *testing.T) {
	catalog := suite.Catalog{
		KEMs:  []suite.KemID{suite.KemX25519HkdfSha256},
		KDFs:  []suite.KdfID{suite.KdfHkdfSha256},
		AEADs: []suite.AeadID{suite.AeadAesGcm128},
	}
	other, err := psk.NewTable(psk.Entry{ID: 1, Secret: bytes.Repeat([]byte{0x5a}, 32)})
	require.NoError(t, err)

	_, _, cerr, serr := pairing(t,
		Options{Catalog: catalog, PairID: []byte("pair-1"), PSKID: 1},
		Options{Catalog: catalog, PSKs: other},
	)
	require.True(t, errors.Is(cerr, ErrConfirmation), "got %v", cerr)
	require.True(t, errors.Is(serr, ErrConfirmation), "got %v", serr)
}

func TestPrimaryPairingNeedsPairID(t *testing.T) {
	cc, _ := pipe(t)
	_, err := PrimaryClientHandshake(cc, Options{})
	require.True(t, errors.Is(err, ErrMissingLabel))
}

func TestDelegationTiers(t *testing.T) {
	opts := Options{PairID: []byte("pair-1"), PSKID: 1}
	pc, ps, cerr, serr := pairing(t, opts, opts)
	require.NoError(t, cerr)
	require.NoError(t, serr)

	sc, err := delegate(t, pc, protocol.RoleSecondaryClient, Options{PairID: opts.PairID, ParticipantID: []byte{13}})
	require.NoError(t, err)
	require.Equal(t, TierRole, sc.Tier)
	want, err := pc.RoleKey([]byte{13})
	require.NoError(t, err)
	require.Equal(t, want, sc.Secret)

	ss, err := delegate(t, ps, protocol.RoleSecondaryServer, Options{PairID: opts.PairID})
	require.NoError(t, err)
	require.Equal(t, TierPair, ss.Tier)
	require.Equal(t, ps.Secret, ss.Secret)
	require.Equal(t, pc.Suite, ss.Suite)
}

func TestDelegationRefusesUnsupportedSuite(t *testing.T) {
	primary := &Delegation{
		PairID: []byte("pair-1"),
		Suite:  suite.CipherSuite{KEM: suite.KemX448HkdfSha512, KDF: suite.KdfHkdfSha512, AEAD: suite.AeadAesGcm256},
		Tier:   TierPair,
		Secret: bytes.Repeat([]byte{1}, 64),
		PSKID:  []byte{1},
	}
	rc, pc := pipe(t)
	errCh := make(chan error, 1)
	go func() {
		hello, err := pc.ReceiveHello()
		if err != nil {
			errCh <- err
			return
		}
		errCh <- Deliver(pc, hello, primary)
	}()
	_, err := RequestDelegation(rc, protocol.RoleSecondaryServer, Options{PairID: primary.PairID})
	require.True(t, errors.Is(err, negotiate.ErrNegotiationFailed), "got %v", err)
	require.NoError(t, <-errCh)
}

// secondary runs a secondary session and delivers msgs from sc to ss.
func secondary(t *testing.T, sc, ss *Delegation, clientOpts Options, msgs [][]byte) (received, error) {
	t.Helper()
	cc, sconn := pipe(t)
	out := make(chan received, 1)
	go func() {
		var r received
		defer func() { out <- r }()
		hello, err := sconn.ReceiveHello()
		if err != nil {
			r.err = err
			return
		}
		sess, err := SecondaryServerHandshake(sconn, hello, ss, Options{FiveTuple: clientOpts.FiveTuple})
		if err != nil {
			r.err = err
			return
		}
		r.suite = sess.Suite()
		for {
			pt, _, err := sess.Receive()
			if err == io.EOF {
				return
			}
			if err != nil {
				r.err = err
				return
			}
			r.msgs = append(r.msgs, pt)
		}
	}()

	sess, err := SecondaryClientHandshake(cc, sc, clientOpts)
	if err != nil {
		return <-out, err
	}
	for _, m := range msgs {
		if err := sess.Send(m, []byte("secondary")); err != nil {
			return <-out, err
		}
	}
	if err := sess.Close(); err != nil {
		return <-out, err
	}
	return <-out, nil
}

func enrolled(t *testing.T, participant []byte) (*Delegation, *Delegation) {
	t.Helper()
	opts := Options{PairID: []byte("pair-1"), PSKID: 3}
	pc, ps, cerr, serr := pairing(t, opts, opts)
	require.NoError(t, cerr)
	require.NoError(t, serr)

	sc, err := delegate(t, pc, protocol.RoleSecondaryClient, Options{PairID: opts.PairID, ParticipantID: participant})
	require.NoError(t, err)
	ss, err := delegate(t, ps, protocol.RoleSecondaryServer, Options{PairID: opts.PairID})
	require.NoError(t, err)
	return sc, ss
}

func TestSecondarySession(t *testing.T) {
	sc, ss := enrolled(t, []byte{13})
	msgs := [][]byte{[]byte("one"), []byte("two")}

	r, err := secondary(t, sc, ss, Options{ParticipantID: []byte{13}, FiveTuple: []byte("tcp 10.0.0.1:4000 10.0.0.2:8888")}, msgs)
	require.NoError(t, err)
	require.NoError(t, r.err)
	require.Equal(t, sc.Suite, r.suite)
	require.Equal(t, msgs, r.msgs)
}

func TestSecondarySessionWrongParticipant(t *testing.T) {
	sc, ss := enrolled(t, []byte{13})

	cc, sconn := pipe(t)
	srvErr := make(chan error, 1)
	go func() {
		hello, err := sconn.ReceiveHello()
		if err != nil {
			srvErr <- err
			return
		}
		sess, err := SecondaryServerHandshake(sconn, hello, ss, Options{})
		if err != nil {
			srvErr <- err
			return
		}
		_, _, err = sess.Receive()
		srvErr <- err
	}()

	// The role key was delegated for participant 13, so announcing 14
	// makes the two session keys differ.
	sess, err := SecondaryClientHandshake(cc, sc, Options{ParticipantID: []byte{14}})
	require.NoError(t, err)
	require.NoError(t, sess.Send([]byte("forged"), nil))
	_, err = cc.Receive()
	require.True(t, errors.Is(err, protocol.ErrConnectionBroken), "got %v", err)

	require.True(t, errors.Is(<-srvErr, agility.ErrAuthentication))
}

func TestSecondaryClientNeedsParticipant(t *testing.T) {
	cc, _ := pipe(t)
	_, err := SecondaryClientHandshake(cc, &Delegation{}, Options{})
	require.True(t, errors.Is(err, ErrMissingLabel))
}
