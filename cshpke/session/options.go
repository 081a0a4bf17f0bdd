package session

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/negotiate"
	"github.com/TheusHen/cshpke/cshpke/psk"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

var (
	ErrUnexpectedRole = errors.New("session: unexpected role")
	ErrMissingLabel   = errors.New("session: missing label")
	ErrWrongDirection = errors.New("session: operation not available in this direction")
	ErrConfirmation   = errors.New("session: pair key confirmation failed")
)

var (
	// DefaultInfo is the HPKE info string when none is configured.
	DefaultInfo = []byte("cshpke session")
	// DefaultFiveTuple labels the binder when the connection endpoints
	// are unknown.
	DefaultFiveTuple = []byte("5-tuple")
)

// keyRefreshSize is the length of a freshly drawn key refresh input.
const keyRefreshSize = 32

// Options carries everything a handshake needs besides the connection.
type Options struct {
	Catalog suite.Catalog
	Policy  negotiate.Policy
	PSKs    psk.Lookup
	PSKID   uint8
	// Mode applies to direct client sessions; the hierarchy always uses
	// AuthPSK.
	Mode          agility.ModeKind
	Info          []byte
	PairID        []byte
	ParticipantID []byte
	// KeyRefreshInput seeds the secondary session binder. A random one is
	// drawn when empty.
	KeyRefreshInput []byte
	FiveTuple       []byte
	Detached        bool
	Rand            io.Reader
}

func (o Options) withDefaults() Options {
	if len(o.Catalog.KEMs) == 0 && len(o.Catalog.KDFs) == 0 && len(o.Catalog.AEADs) == 0 {
		o.Catalog = suite.Default()
	}
	if o.PSKs == nil {
		o.PSKs = psk.Default()
	}
	if len(o.Info) == 0 {
		o.Info = DefaultInfo
	}
	if len(o.FiveTuple) == 0 {
		o.FiveTuple = DefaultFiveTuple
	}
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	return o
}

func (o Options) keyRefreshInput() ([]byte, error) {
	if len(o.KeyRefreshInput) > 0 {
		return append([]byte(nil), o.KeyRefreshInput...), nil
	}
	kri := make([]byte, keyRefreshSize)
	if _, err := io.ReadFull(o.Rand, kri); err != nil {
		return nil, errors.Wrap(err, "session: drawing key refresh input")
	}
	return kri, nil
}
