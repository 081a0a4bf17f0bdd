package agility

import (
	"sync"

	"github.com/cloudflare/circl/hpke"
	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/suite"
)

var ErrAuthentication = errors.New("agility: aead authentication failed")

// SenderContext seals messages for one receiver. Nonces come from an
// internal sequence number that advances on every successful Seal.
type SenderContext interface {
	Suite() suite.CipherSuite
	Seal(plaintext, aad []byte) ([]byte, error)
	// SealDetached returns the ciphertext body and the authentication tag
	// separately.
	SealDetached(plaintext, aad []byte) (ciphertext, tag []byte, err error)
	Export(exporterContext []byte, length int) []byte
	Seq() uint64
}

// ReceiverContext opens messages from one sender, in the order they were
// sealed.
type ReceiverContext interface {
	Suite() suite.CipherSuite
	Open(ciphertext, aad []byte) ([]byte, error)
	OpenDetached(ciphertext, tag, aad []byte) ([]byte, error)
	Export(exporterContext []byte, length int) []byte
	Seq() uint64
}

// TagSize is the authentication tag length of a.
func TagSize(a suite.AeadID) int {
	return int(a.HPKE().CipherLen(0))
}

type sealContext struct {
	mu    sync.Mutex
	suite suite.CipherSuite
	inner hpke.Sealer
	seq   uint64
}

func (c *sealContext) Suite() suite.CipherSuite { return c.suite }

func (c *sealContext) Seal(plaintext, aad []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, err := c.inner.Seal(plaintext, aad)
	if err != nil {
		return nil, errors.Wrapf(err, "agility: seal message %d", c.seq)
	}
	c.seq++
	return ct, nil
}

func (c *sealContext) SealDetached(plaintext, aad []byte) ([]byte, []byte, error) {
	ct, err := c.Seal(plaintext, aad)
	if err != nil {
		return nil, nil, err
	}
	split := len(ct) - TagSize(c.suite.AEAD)
	return ct[:split], ct[split:], nil
}

func (c *sealContext) Export(exporterContext []byte, length int) []byte {
	return c.inner.Export(exporterContext, uint(length))
}

func (c *sealContext) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

type openContext struct {
	mu    sync.Mutex
	suite suite.CipherSuite
	inner hpke.Opener
	seq   uint64
}

func (c *openContext) Suite() suite.CipherSuite { return c.suite }

func (c *openContext) Open(ciphertext, aad []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pt, err := c.inner.Open(ciphertext, aad)
	if err != nil {
		return nil, errors.Wrapf(ErrAuthentication, "message %d", c.seq)
	}
	c.seq++
	return pt, nil
}

func (c *openContext) OpenDetached(ciphertext, tag, aad []byte) ([]byte, error) {
	if len(tag) != TagSize(c.suite.AEAD) {
		return nil, errors.Wrapf(ErrAuthentication, "tag must be %d bytes, got %d", TagSize(c.suite.AEAD), len(tag))
	}
	joined := make([]byte, 0, len(ciphertext)+len(tag))
	joined = append(joined, ciphertext...)
	joined = append(joined, tag...)
	return c.Open(joined, aad)
}

func (c *openContext) Export(exporterContext []byte, length int) []byte {
	return c.inner.Export(exporterContext, uint(length))
}

func (c *openContext) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}
