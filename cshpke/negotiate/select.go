package negotiate

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/suite"
)

var ErrNegotiationFailed = errors.New("negotiate: no common cipher suite")

// Policy decides which algorithm wins when several are mutually supported.
type Policy uint8

const (
	// PolicyResponderPreference picks, per family, the first algorithm in
	// the responder's catalog that the initiator offered.
	PolicyResponderPreference Policy = iota
	// PolicyLastOfferedMatch picks the last offered algorithm that the
	// responder supports.
	PolicyLastOfferedMatch
)

func (p Policy) String() string {
	switch p {
	case PolicyResponderPreference:
		return "responder-preference"
	case PolicyLastOfferedMatch:
		return "last-offered-match"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// PolicyByName resolves a configuration name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyResponderPreference.String():
		return PolicyResponderPreference, nil
	case PolicyLastOfferedMatch.String():
		return PolicyLastOfferedMatch, nil
	}
	return 0, errors.Errorf("negotiate: unknown policy %q", name)
}

// Select intersects an offer with the local catalog. It fails if any family
// has no common algorithm.
func Select(offer, local suite.Catalog, policy Policy) (suite.CipherSuite, error) {
	kem, ok := pick(offer.KEMs, local.KEMs, policy)
	if !ok {
		return suite.CipherSuite{}, errors.Wrap(ErrNegotiationFailed, "kem")
	}
	kdf, ok := pick(offer.KDFs, local.KDFs, policy)
	if !ok {
		return suite.CipherSuite{}, errors.Wrap(ErrNegotiationFailed, "kdf")
	}
	aead, ok := pick(offer.AEADs, local.AEADs, policy)
	if !ok {
		return suite.CipherSuite{}, errors.Wrap(ErrNegotiationFailed, "aead")
	}
	return suite.CipherSuite{KEM: kem, KDF: kdf, AEAD: aead}, nil
}

func pick[T comparable](offered, local []T, policy Policy) (T, bool) {
	var zero T
	switch policy {
	case PolicyLastOfferedMatch:
		found, chosen := false, zero
		for _, v := range offered {
			if slices.Contains(local, v) {
				found, chosen = true, v
			}
		}
		return chosen, found
	default:
		for _, v := range local {
			if slices.Contains(offered, v) {
				return v, true
			}
		}
		return zero, false
	}
}
