package suite

import (
	"slices"

	"github.com/pkg/errors"
)

// Catalog is an ordered set of supported algorithms per family. Order
// expresses preference, most preferred first.
type Catalog struct {
	KEMs  []KemID
	KDFs  []KdfID
	AEADs []AeadID
}

var defaultCatalog = Catalog{
	KEMs:  []KemID{KemX25519HkdfSha256, KemDhP256HkdfSha256},
	KDFs:  []KdfID{KdfHkdfSha256, KdfHkdfSha384, KdfHkdfSha512},
	AEADs: []AeadID{AeadAesGcm128, AeadAesGcm256, AeadChaCha20Poly1305},
}

// Default returns a copy of the process-wide default catalog.
func Default() Catalog { return defaultCatalog.Clone() }

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	return Catalog{
		KEMs:  slices.Clone(c.KEMs),
		KDFs:  slices.Clone(c.KDFs),
		AEADs: slices.Clone(c.AEADs),
	}
}

// Validate requires a non-empty list of registered algorithms per family.
func (c Catalog) Validate() error {
	if len(c.KEMs) == 0 {
		return errors.Wrap(ErrEmptyFamily, "kem")
	}
	if len(c.KDFs) == 0 {
		return errors.Wrap(ErrEmptyFamily, "kdf")
	}
	if len(c.AEADs) == 0 {
		return errors.Wrap(ErrEmptyFamily, "aead")
	}
	for _, k := range c.KEMs {
		if !k.IsValid() {
			return errors.Wrapf(ErrUnknownAlgorithm, "kem %s", k)
		}
	}
	for _, k := range c.KDFs {
		if !k.IsValid() {
			return errors.Wrapf(ErrUnknownAlgorithm, "kdf %s", k)
		}
	}
	for _, a := range c.AEADs {
		if !a.IsValid() {
			return errors.Wrapf(ErrUnknownAlgorithm, "aead %s", a)
		}
	}
	return nil
}

func (c Catalog) SupportsKEM(id KemID) bool { return slices.Contains(c.KEMs, id) }
func (c Catalog) SupportsKDF(id KdfID) bool { return slices.Contains(c.KDFs, id) }
func (c Catalog) SupportsAEAD(id AeadID) bool { return slices.Contains(c.AEADs, id) }

// Supports reports whether every member of s is in the catalog.
func (c Catalog) Supports(s CipherSuite) bool {
	return c.SupportsKEM(s.KEM) && c.SupportsKDF(s.KDF) && c.SupportsAEAD(s.AEAD)
}

// Suites enumerates every combination in preference order.
func (c Catalog) Suites() []CipherSuite {
	out := make([]CipherSuite, 0, len(c.KEMs)*len(c.KDFs)*len(c.AEADs))
	for _, k := range c.KEMs {
		for _, d := range c.KDFs {
			for _, a := range c.AEADs {
				out = append(out, CipherSuite{KEM: k, KDF: d, AEAD: a})
			}
		}
	}
	return out
}

// All lists every registered algorithm, in code order.
func All() Catalog {
	return Catalog{
		KEMs:  []KemID{KemDhP256HkdfSha256, KemDhP384HkdfSha384, KemDhP521HkdfSha512, KemX25519HkdfSha256, KemX448HkdfSha512},
		KDFs:  []KdfID{KdfHkdfSha256, KdfHkdfSha384, KdfHkdfSha512},
		AEADs: []AeadID{AeadAesGcm128, AeadAesGcm256, AeadChaCha20Poly1305},
	}
}
