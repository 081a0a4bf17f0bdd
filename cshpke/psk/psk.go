// Package psk holds the pre-shared keys used by the PSK and AuthPSK HPKE
// modes. Keys are addressed by a one-byte id and by the output length of
// the negotiated KDF; a key's length always equals that output length.
package psk

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/suite"
)

var (
	ErrUnknownPSK = errors.New("psk: no pre-shared key for id")
	ErrPSKLength  = errors.New("psk: key length does not match kdf output length")
)

// Bundle is a resolved pre-shared key and the id that names it on the wire.
type Bundle struct {
	PSK []byte
	ID  []byte
}

// Lookup resolves pre-shared keys for a negotiated KDF.
type Lookup interface {
	Lookup(id uint8, kdf suite.KdfID) (Bundle, error)
}

// Entry is one configured pre-shared key.
type Entry struct {
	ID     uint8
	Secret []byte
}

type key struct {
	id     uint8
	length int
}

// Table is an immutable pre-shared key table.
type Table struct {
	entries map[key][]byte
}

// NewTable validates that every secret has the output length of some
// registered KDF and indexes it.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{entries: make(map[key][]byte, len(entries))}
	for _, e := range entries {
		if !validLength(len(e.Secret)) {
			return nil, errors.Wrapf(ErrPSKLength, "id %d has %d bytes", e.ID, len(e.Secret))
		}
		k := key{id: e.ID, length: len(e.Secret)}
		if _, dup := t.entries[k]; dup {
			return nil, errors.Errorf("psk: duplicate id %d for %d-byte keys", e.ID, len(e.Secret))
		}
		t.entries[k] = append([]byte(nil), e.Secret...)
	}
	return t, nil
}

func validLength(n int) bool {
	for _, k := range suite.All().KDFs {
		if k.OutputLen() == n {
			return true
		}
	}
	return false
}

// Get returns a copy of the secret for id with the given output length.
func (t *Table) Get(id uint8, outputLen int) ([]byte, error) {
	s, ok := t.entries[key{id: id, length: outputLen}]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPSK, "id %d, %d bytes", id, outputLen)
	}
	return append([]byte(nil), s...), nil
}

// Lookup implements Lookup.
func (t *Table) Lookup(id uint8, kdf suite.KdfID) (Bundle, error) {
	if !kdf.IsValid() {
		return Bundle{}, errors.Wrapf(suite.ErrUnknownAlgorithm, "kdf %s", kdf)
	}
	s, err := t.Get(id, kdf.OutputLen())
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{PSK: s, ID: []byte{id}}, nil
}

// Len is the number of stored keys.
func (t *Table) Len() int { return len(t.entries) }

// ParseID decodes a PSK_ID payload, which is exactly one byte.
func ParseID(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, errors.Errorf("psk: id must be one byte, got %d", len(b))
	}
	return b[0], nil
}

// Check verifies that b fits kdf.
func (b Bundle) Check(kdf suite.KdfID) error {
	if len(b.PSK) != kdf.OutputLen() {
		return errors.Wrapf(ErrPSKLength, "%d bytes for %s", len(b.PSK), kdf)
	}
	if len(b.ID) == 0 {
		return errors.New("psk: empty id")
	}
	return nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in table. It is built once and never mutated.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := NewTable(builtin()...)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}
