package agility

import (
	"crypto/rand"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/suite"
)

var (
	ErrKeyDeserialization = errors.New("agility: key deserialization failed")
	ErrSuiteMismatch      = errors.New("agility: key does not match the negotiated kem")
)

// PublicKey is a serialized KEM public key tagged with its KEM.
type PublicKey struct {
	KEM   suite.KemID
	Bytes []byte
}

// EncappedKey is the KEM encapsulation produced by a sender setup.
type EncappedKey struct {
	KEM   suite.KemID
	Bytes []byte
}

// KeyPair is a KEM key pair. The private half never leaves the package.
type KeyPair struct {
	Public PublicKey

	sk kem.PrivateKey
	pk kem.PublicKey
}

func scheme(id suite.KemID) (kem.AuthScheme, error) {
	if !id.IsValid() {
		return nil, errors.Wrapf(suite.ErrUnknownAlgorithm, "kem %s", id)
	}
	return id.HPKE().Scheme(), nil
}

// GenerateKeyPair draws a seed from rnd (crypto/rand when nil) and derives
// a key pair for id from it.
func GenerateKeyPair(id suite.KemID, rnd io.Reader) (KeyPair, error) {
	s, err := scheme(id)
	if err != nil {
		return KeyPair{}, err
	}
	if rnd == nil {
		rnd = rand.Reader
	}
	seed := make([]byte, s.SeedSize())
	if _, err := io.ReadFull(rnd, seed); err != nil {
		return KeyPair{}, errors.Wrap(err, "agility: reading key seed")
	}
	return DeriveKeyPair(id, seed)
}

// DeriveKeyPair deterministically derives a key pair from seed, which must
// be exactly the KEM's seed size.
func DeriveKeyPair(id suite.KemID, seed []byte) (KeyPair, error) {
	s, err := scheme(id)
	if err != nil {
		return KeyPair{}, err
	}
	if len(seed) != s.SeedSize() {
		return KeyPair{}, errors.Errorf("agility: %s seed must be %d bytes, got %d", id, s.SeedSize(), len(seed))
	}
	pk, sk := s.DeriveKeyPair(seed)
	raw, err := pk.MarshalBinary()
	if err != nil {
		return KeyPair{}, errors.Wrap(err, "agility: marshal public key")
	}
	return KeyPair{
		Public: PublicKey{KEM: id, Bytes: raw},
		sk:     sk,
		pk:     pk,
	}, nil
}

// PublicKeySize is the serialized public key length for id.
func PublicKeySize(id suite.KemID) int {
	s, err := scheme(id)
	if err != nil {
		return 0
	}
	return s.PublicKeySize()
}

// ParsePublicKey deserializes b as a public key of id.
func ParsePublicKey(id suite.KemID, b []byte) (PublicKey, error) {
	pk := PublicKey{KEM: id, Bytes: append([]byte(nil), b...)}
	if _, err := pk.unmarshal(); err != nil {
		return PublicKey{}, err
	}
	return pk, nil
}

func (p PublicKey) unmarshal() (kem.PublicKey, error) {
	s, err := scheme(p.KEM)
	if err != nil {
		return nil, err
	}
	if len(p.Bytes) != s.PublicKeySize() {
		return nil, errors.Wrapf(ErrKeyDeserialization, "%s public key must be %d bytes, got %d",
			p.KEM, s.PublicKeySize(), len(p.Bytes))
	}
	pk, err := s.UnmarshalBinaryPublicKey(p.Bytes)
	if err != nil {
		return nil, errors.Wrapf(ErrKeyDeserialization, "%s public key: %v", p.KEM, err)
	}
	return pk, nil
}

func (e EncappedKey) check() error {
	s, err := scheme(e.KEM)
	if err != nil {
		return err
	}
	if len(e.Bytes) != s.CiphertextSize() {
		return errors.Wrapf(ErrKeyDeserialization, "%s encapsulated key must be %d bytes, got %d",
			e.KEM, s.CiphertextSize(), len(e.Bytes))
	}
	return nil
}
