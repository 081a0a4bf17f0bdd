package keyschedule

import (
	"crypto"
	"crypto/sha256"
	"crypto/subtle"
	"io"
	"math"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
	"github.com/pkg/errors"
)

var (
	ErrEmptySecret   = errors.New("keyschedule: empty secret")
	ErrInvalidLength = errors.New("keyschedule: invalid output length")
)

// maxOutput is the largest length the 32-bit counter can cover.
const maxOutput = math.MaxUint32 * sha256.Size

// ConcatKDF is the NIST SP 800-56A single-step KDF over SHA-256:
//
//	K(i) = SHA-256(counter_i || secret || otherInfo), counter_i = i as uint32 BE, i >= 1
//
// concatenated and truncated to length bytes.
func ConcatKDF(secret, otherInfo []byte, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if length <= 0 || uint64(length) > maxOutput {
		return nil, errors.Wrapf(ErrInvalidLength, "%d", length)
	}
	// otherInfo goes in as the algorithm id; the party and extra info
	// fields are empty, so the hash input is exactly counter||secret||otherInfo.
	kdf := josecipher.NewConcatKDF(crypto.SHA256, secret, otherInfo, nil, nil, nil, nil)
	out := make([]byte, length)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, errors.Wrap(err, "keyschedule: concat kdf")
	}
	return out, nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
