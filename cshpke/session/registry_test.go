package session

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/keyschedule"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

var registrySuite = suite.CipherSuite{KEM: suite.KemX25519HkdfSha256, KDF: suite.KdfHkdfSha256, AEAD: suite.AeadAesGcm128}

func newDelegation(pairID string) *Delegation {
	return &Delegation{
		PairID: []byte(pairID),
		Suite:  registrySuite,
		Tier:   TierPair,
		Secret: bytes.Repeat([]byte{7}, 32),
		PSKID:  []byte{1},
	}
}

func TestRegistryPutAndLookup(t *testing.T) {
	r := NewRegistry(0)
	d := newDelegation("pair-a")
	r.Put(d)

	if r.Count() != 1 {
		t.Fatalf("expected 1 delegation, got %d", r.Count())
	}
	got, err := r.Lookup([]byte("pair-a"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == d || !bytes.Equal(got.Secret, d.Secret) || !bytes.Equal(got.PairID, d.PairID) {
		t.Fatalf("Lookup should return a copy of the stored delegation")
	}
	if got.ExpiresAt <= got.IssuedAt {
		t.Fatalf("expiry %d not after issue %d", got.ExpiresAt, got.IssuedAt)
	}
}

func TestRegistryExpiration(t *testing.T) {
	r := NewRegistry(time.Hour)
	d := newDelegation("pair-a")
	r.Put(d)
	// Manually expire the stored delegation
	stored := r.entries["pair-a"]
	stored.ExpiresAt = time.Now().Add(-time.Hour).Unix()

	_, err := r.Lookup([]byte("pair-a"))
	if !errors.Is(err, ErrDelegationExpired) {
		t.Fatalf("expected ErrDelegationExpired, got %v", err)
	}
	if n := r.Cleanup(); n != 1 {
		t.Fatalf("Cleanup removed %d, want 1", n)
	}
	if r.Count() != 0 {
		t.Fatalf("expected empty registry")
	}
	if !bytes.Equal(stored.Secret, make([]byte, 32)) {
		t.Fatalf("expired secret was not wiped")
	}
}

func TestRegistryRevokeWipes(t *testing.T) {
	r := NewRegistry(0)
	d := newDelegation("pair-a")
	r.Put(d)
	inUse, err := r.Lookup([]byte("pair-a"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	stored := r.entries["pair-a"]
	r.Revoke([]byte("pair-a"))

	_, err = r.Lookup([]byte("pair-a"))
	if !errors.Is(err, ErrDelegationNotFound) {
		t.Fatalf("expected ErrDelegationNotFound, got %v", err)
	}
	if !bytes.Equal(stored.Secret, make([]byte, 32)) {
		t.Fatalf("revoked secret was not wiped")
	}
	if !bytes.Equal(inUse.Secret, d.Secret) {
		t.Fatalf("revoking wiped a snapshot held by a caller")
	}
}

func TestRegistryReplaceWipesOld(t *testing.T) {
	r := NewRegistry(0)
	old := newDelegation("pair-a")
	r.Put(old)
	stored := r.entries["pair-a"]
	next := newDelegation("pair-a")
	next.Secret = bytes.Repeat([]byte{9}, 32)
	r.Put(next)

	if r.Count() != 1 {
		t.Fatalf("expected 1 delegation, got %d", r.Count())
	}
	if !bytes.Equal(stored.Secret, make([]byte, 32)) {
		t.Fatalf("replaced secret was not wiped")
	}
	if !bytes.Equal(old.Secret, bytes.Repeat([]byte{7}, 32)) {
		t.Fatalf("Put wiped the caller's delegation")
	}
	got, err := r.Lookup([]byte("pair-a"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !bytes.Equal(got.Secret, next.Secret) {
		t.Fatalf("Lookup returned the replaced secret")
	}
}

func TestDeliverAfterReplace(t *testing.T) {
	r := NewRegistry(0)
	r.Put(newDelegation("pair-a"))
	inUse, err := r.Lookup([]byte("pair-a"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	// A new pairing under the same id lands while inUse is being delivered.
	next := newDelegation("pair-a")
	next.Secret = bytes.Repeat([]byte{9}, 32)
	r.Put(next)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	done := make(chan error, 1)
	go func() {
		conn := protocol.NewConn(a)
		hello, err := conn.ReceiveHello()
		if err != nil {
			done <- err
			return
		}
		done <- Deliver(conn, hello, inUse)
	}()
	got, err := RequestDelegation(protocol.NewConn(b), protocol.RoleSecondaryServer, Options{PairID: []byte("pair-a")})
	if err != nil {
		t.Fatalf("RequestDelegation: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !bytes.Equal(got.Secret, bytes.Repeat([]byte{7}, 32)) {
		t.Fatalf("delivered secret = %x", got.Secret)
	}
}

func TestDelegationRoleKey(t *testing.T) {
	pair := newDelegation("pair-a")
	a, err := pair.RoleKey([]byte{1})
	if err != nil {
		t.Fatalf("RoleKey: %v", err)
	}
	want, _ := keyschedule.RoleKey(pair.Secret, []byte{1}, 32)
	if !bytes.Equal(a, want) {
		t.Fatalf("pair-tier role key mismatch")
	}
	if _, err := pair.RoleKey(nil); !errors.Is(err, ErrMissingLabel) {
		t.Fatalf("expected ErrMissingLabel, got %v", err)
	}

	role := &Delegation{Suite: registrySuite, Tier: TierRole, Secret: a}
	b, err := role.RoleKey([]byte{99})
	if err != nil {
		t.Fatalf("RoleKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("role-tier delegation should hand back its own key")
	}
	b[0] ^= 1
	if bytes.Equal(a, b) {
		t.Fatalf("RoleKey must return a copy")
	}
}
