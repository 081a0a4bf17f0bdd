// Package suite is the catalog of HPKE algorithms a node knows about.
//
// Algorithm identifiers use the RFC 9180 registry codes, which are also the
// values carried on the wire during negotiation. Decoding a code that is not
// in the registry is an error, never a silent default.
package suite

import (
	"fmt"
	"strings"

	"github.com/cloudflare/circl/hpke"
	"github.com/pkg/errors"
)

var (
	ErrUnknownAlgorithm = errors.New("suite: unknown algorithm")
	ErrEmptyFamily      = errors.New("suite: no algorithm configured for family")
)

// KemID identifies a key encapsulation mechanism.
type KemID uint16

const (
	KemDhP256HkdfSha256 KemID = 0x0010
	KemDhP384HkdfSha384 KemID = 0x0011
	KemDhP521HkdfSha512 KemID = 0x0012
	KemX25519HkdfSha256 KemID = 0x0020
	KemX448HkdfSha512   KemID = 0x0021
)

// KdfID identifies an HKDF variant.
type KdfID uint16

const (
	KdfHkdfSha256 KdfID = 0x0001
	KdfHkdfSha384 KdfID = 0x0002
	KdfHkdfSha512 KdfID = 0x0003
)

// AeadID identifies an AEAD cipher.
type AeadID uint16

const (
	AeadAesGcm128        AeadID = 0x0001
	AeadAesGcm256        AeadID = 0x0002
	AeadChaCha20Poly1305 AeadID = 0x0003
)

var kemNames = map[KemID]string{
	KemDhP256HkdfSha256: "DhP256HkdfSha256",
	KemDhP384HkdfSha384: "DhP384HkdfSha384",
	KemDhP521HkdfSha512: "DhP521HkdfSha512",
	KemX25519HkdfSha256: "X25519HkdfSha256",
	KemX448HkdfSha512:   "X448HkdfSha512",
}

var kdfNames = map[KdfID]string{
	KdfHkdfSha256: "HkdfSha256",
	KdfHkdfSha384: "HkdfSha384",
	KdfHkdfSha512: "HkdfSha512",
}

var aeadNames = map[AeadID]string{
	AeadAesGcm128:        "AesGcm128",
	AeadAesGcm256:        "AesGcm256",
	AeadChaCha20Poly1305: "ChaCha20Poly1305",
}

func (k KemID) String() string {
	if n, ok := kemNames[k]; ok {
		return n
	}
	return fmt.Sprintf("KEM(0x%04x)", uint16(k))
}

// IsValid reports whether k is a registered KEM.
func (k KemID) IsValid() bool {
	_, ok := kemNames[k]
	return ok
}

// HPKE returns the circl identifier for k.
func (k KemID) HPKE() hpke.KEM { return hpke.KEM(k) }

func (k KdfID) String() string {
	if n, ok := kdfNames[k]; ok {
		return n
	}
	return fmt.Sprintf("KDF(0x%04x)", uint16(k))
}

// IsValid reports whether k is a registered KDF.
func (k KdfID) IsValid() bool {
	_, ok := kdfNames[k]
	return ok
}

// HPKE returns the circl identifier for k.
func (k KdfID) HPKE() hpke.KDF { return hpke.KDF(k) }

// OutputLen is the native output length of the KDF's hash in bytes.
// Pre-shared keys and every hierarchy secret used with this KDF have
// exactly this length.
func (k KdfID) OutputLen() int {
	switch k {
	case KdfHkdfSha256:
		return 32
	case KdfHkdfSha384:
		return 48
	case KdfHkdfSha512:
		return 64
	default:
		return 0
	}
}

func (a AeadID) String() string {
	if n, ok := aeadNames[a]; ok {
		return n
	}
	return fmt.Sprintf("AEAD(0x%04x)", uint16(a))
}

// IsValid reports whether a is a registered AEAD.
func (a AeadID) IsValid() bool {
	_, ok := aeadNames[a]
	return ok
}

// HPKE returns the circl identifier for a.
func (a AeadID) HPKE() hpke.AEAD { return hpke.AEAD(a) }

// ParseKemID decodes a wire code.
func ParseKemID(code uint16) (KemID, error) {
	k := KemID(code)
	if !k.IsValid() {
		return 0, errors.Wrapf(ErrUnknownAlgorithm, "kem code 0x%04x", code)
	}
	return k, nil
}

// ParseKdfID decodes a wire code.
func ParseKdfID(code uint16) (KdfID, error) {
	k := KdfID(code)
	if !k.IsValid() {
		return 0, errors.Wrapf(ErrUnknownAlgorithm, "kdf code 0x%04x", code)
	}
	return k, nil
}

// ParseAeadID decodes a wire code.
func ParseAeadID(code uint16) (AeadID, error) {
	a := AeadID(code)
	if !a.IsValid() {
		return 0, errors.Wrapf(ErrUnknownAlgorithm, "aead code 0x%04x", code)
	}
	return a, nil
}

// KemByName resolves a configuration name such as "X25519HkdfSha256".
func KemByName(name string) (KemID, error) {
	for id, n := range kemNames {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownAlgorithm, "kem %q", name)
}

// KdfByName resolves a configuration name such as "HkdfSha384".
func KdfByName(name string) (KdfID, error) {
	for id, n := range kdfNames {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownAlgorithm, "kdf %q", name)
}

// AeadByName resolves a configuration name such as "ChaCha20Poly1305".
func AeadByName(name string) (AeadID, error) {
	for id, n := range aeadNames {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownAlgorithm, "aead %q", name)
}

// CipherSuite is one negotiated (KEM, KDF, AEAD) triple.
type CipherSuite struct {
	KEM  KemID
	KDF  KdfID
	AEAD AeadID
}

func (s CipherSuite) String() string {
	return fmt.Sprintf("%s/%s/%s", s.KEM, s.KDF, s.AEAD)
}

// Validate checks that every member of the triple is registered.
func (s CipherSuite) Validate() error {
	if !s.KEM.IsValid() {
		return errors.Wrapf(ErrUnknownAlgorithm, "kem %s", s.KEM)
	}
	if !s.KDF.IsValid() {
		return errors.Wrapf(ErrUnknownAlgorithm, "kdf %s", s.KDF)
	}
	if !s.AEAD.IsValid() {
		return errors.Wrapf(ErrUnknownAlgorithm, "aead %s", s.AEAD)
	}
	return nil
}

// HPKE instantiates the circl suite. s must be valid.
func (s CipherSuite) HPKE() hpke.Suite {
	return hpke.NewSuite(s.KEM.HPKE(), s.KDF.HPKE(), s.AEAD.HPKE())
}
