package suite

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseRegisteredCodes(t *testing.T) {
	all := All()
	for _, k := range all.KEMs {
		got, err := ParseKemID(uint16(k))
		require.NoError(t, err)
		require.Equal(t, k, got)
		require.True(t, k.HPKE().IsValid(), "circl rejects %s", k)
	}
	for _, k := range all.KDFs {
		got, err := ParseKdfID(uint16(k))
		require.NoError(t, err)
		require.Equal(t, k, got)
		require.Equal(t, int(k.HPKE().ExtractSize()), k.OutputLen())
	}
	for _, a := range all.AEADs {
		got, err := ParseAeadID(uint16(a))
		require.NoError(t, err)
		require.Equal(t, a, got)
		require.True(t, a.HPKE().IsValid())
	}
}

func TestParseUnknownCodeFails(t *testing.T) {
	_, err := ParseKemID(0x0099)
	require.True(t, errors.Is(err, ErrUnknownAlgorithm))
	_, err = ParseKdfID(0)
	require.True(t, errors.Is(err, ErrUnknownAlgorithm))
	_, err = ParseAeadID(0xffff)
	require.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestByName(t *testing.T) {
	k, err := KemByName("x25519hkdfsha256")
	require.NoError(t, err)
	require.Equal(t, KemX25519HkdfSha256, k)

	d, err := KdfByName("HkdfSha384")
	require.NoError(t, err)
	require.Equal(t, KdfHkdfSha384, d)

	a, err := AeadByName("ChaCha20Poly1305")
	require.NoError(t, err)
	require.Equal(t, AeadChaCha20Poly1305, a)

	_, err = AeadByName("Rot13")
	require.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestDefaultCatalogIsACopy(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	c.KEMs[0] = KemX448HkdfSha512
	require.Equal(t, KemX25519HkdfSha256, Default().KEMs[0])
}

func TestCatalogValidate(t *testing.T) {
	c := Default()
	c.AEADs = nil
	require.True(t, errors.Is(c.Validate(), ErrEmptyFamily))

	c = Default()
	c.KDFs = append(c.KDFs, KdfID(9))
	require.True(t, errors.Is(c.Validate(), ErrUnknownAlgorithm))
}

func TestCatalogSuites(t *testing.T) {
	c := Default()
	suites := c.Suites()
	require.Len(t, suites, 2*3*3)
	require.Equal(t, CipherSuite{KEM: KemX25519HkdfSha256, KDF: KdfHkdfSha256, AEAD: AeadAesGcm128}, suites[0])
	for _, s := range suites {
		require.True(t, c.Supports(s))
		require.NoError(t, s.Validate())
	}
}

func TestCipherSuiteString(t *testing.T) {
	s := CipherSuite{KEM: KemDhP256HkdfSha256, KDF: KdfHkdfSha384, AEAD: AeadChaCha20Poly1305}
	require.Equal(t, "DhP256HkdfSha256/HkdfSha384/ChaCha20Poly1305", s.String())
	require.Equal(t, "KEM(0x0099)", KemID(0x99).String())
}
