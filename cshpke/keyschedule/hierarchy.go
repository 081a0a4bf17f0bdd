package keyschedule

import (
	"net/netip"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// PairKey binds the root secret of a primary pairing to its pair id.
func PairKey(root, pairID []byte, length int) ([]byte, error) {
	return ConcatKDF(root, pairID, length)
}

// RoleKey derives the key delegated to one secondary participant.
func RoleKey(pairKey, participantID []byte, length int) ([]byte, error) {
	return ConcatKDF(pairKey, participantID, length)
}

// Binder ties a secondary session to its key refresh input and to the
// connection it runs on.
func Binder(keyRefreshInput, fiveTuple []byte, length int) ([]byte, error) {
	return ConcatKDF(keyRefreshInput, fiveTuple, length)
}

// SessionKey is the pre-shared key of a secondary session.
func SessionKey(binder, roleKey []byte, length int) ([]byte, error) {
	return ConcatKDF(binder, roleKey, length)
}

// Labels are the public inputs of one path through the hierarchy.
type Labels struct {
	PairID          []byte
	ParticipantID   []byte
	KeyRefreshInput []byte
	FiveTuple       []byte
}

// Material is every secret produced on one path from a root secret to a
// session key. Wipe it once the session key has been handed over.
type Material struct {
	Pair    []byte
	Role    []byte
	Binder  []byte
	Session []byte
}

// Wipe zeroes all held secrets.
func (m *Material) Wipe() {
	Wipe(m.Pair)
	Wipe(m.Role)
	Wipe(m.Binder)
	Wipe(m.Session)
}

// Derive walks root -> pair -> role -> session for l. Every output has
// length bytes.
func Derive(root []byte, l Labels, length int) (*Material, error) {
	pair, err := PairKey(root, l.PairID, length)
	if err != nil {
		return nil, errors.Wrap(err, "pair key")
	}
	m, err := DeriveFromPair(pair, l, length)
	if err != nil {
		Wipe(pair)
		return nil, err
	}
	return m, nil
}

// DeriveFromPair starts from a delegated pair key, as a secondary server
// does.
func DeriveFromPair(pair []byte, l Labels, length int) (*Material, error) {
	role, err := RoleKey(pair, l.ParticipantID, length)
	if err != nil {
		return nil, errors.Wrap(err, "role key")
	}
	m, err := DeriveFromRole(role, l, length)
	if err != nil {
		Wipe(role)
		return nil, err
	}
	m.Pair = pair
	return m, nil
}

// DeriveFromRole starts from a delegated role key, as a secondary client
// does.
func DeriveFromRole(role []byte, l Labels, length int) (*Material, error) {
	binder, err := Binder(l.KeyRefreshInput, l.FiveTuple, length)
	if err != nil {
		return nil, errors.Wrap(err, "binder")
	}
	session, err := SessionKey(binder, role, length)
	if err != nil {
		Wipe(binder)
		return nil, errors.Wrap(err, "session key")
	}
	return &Material{Role: role, Binder: binder, Session: session}, nil
}

// FiveTuple identifies the connection a secondary session runs on. The
// client endpoint always comes first so both ends produce the same label.
type FiveTuple struct {
	Protocol string
	Client   netip.AddrPort
	Server   netip.AddrPort
}

// Label encodes t as the otherInfo input of Binder.
func (t FiveTuple) Label() ([]byte, error) {
	if !t.Client.IsValid() || !t.Server.IsValid() {
		return nil, errors.New("keyschedule: five-tuple needs both endpoints")
	}
	var b cryptobyte.Builder
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes([]byte(t.Protocol)) })
	for _, ap := range []netip.AddrPort{t.Client, t.Server} {
		addr := ap.Addr().Unmap().As16()
		b.AddBytes(addr[:])
		b.AddUint16(ap.Port())
	}
	return b.Bytes()
}

var confirmationLabel = []byte("cshpke pair confirmation")

// Confirmation is a tag that proves knowledge of pairKey without
// revealing it.
func Confirmation(pairKey []byte) ([]byte, error) {
	return ConcatKDF(pairKey, confirmationLabel, 32)
}
