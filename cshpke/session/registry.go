package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/keyschedule"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

var (
	ErrDelegationExpired  = errors.New("session: delegation expired")
	ErrDelegationNotFound = errors.New("session: delegation not found")
)

// DelegationLifetime is how long a stored delegation stays usable.
const DelegationLifetime = 24 * time.Hour

// Tier says how far down the hierarchy a delegated secret sits.
type Tier uint8

const (
	// TierPair secrets are pair keys; role keys are derived from them on
	// demand for each secondary client id.
	TierPair Tier = 1
	// TierRole secrets are the role key of one secondary client.
	TierRole Tier = 2
)

func (t Tier) String() string {
	switch t {
	case TierPair:
		return "pair"
	case TierRole:
		return "role"
	default:
		return "unknown"
	}
}

// Delegation is the key material a node holds for one pairing.
type Delegation struct {
	PairID    []byte
	Suite     suite.CipherSuite
	Tier      Tier
	Secret    []byte
	PSKID     []byte
	IssuedAt  int64
	ExpiresAt int64
}

// RoleKey returns the role key for participantID: derived for pair-tier
// delegations, a copy of the held key for role-tier ones.
func (d *Delegation) RoleKey(participantID []byte) ([]byte, error) {
	switch d.Tier {
	case TierPair:
		if len(participantID) == 0 {
			return nil, errors.Wrap(ErrMissingLabel, "participant id")
		}
		return keyschedule.RoleKey(d.Secret, participantID, d.Suite.KDF.OutputLen())
	case TierRole:
		return append([]byte(nil), d.Secret...), nil
	default:
		return nil, errors.Errorf("session: delegation has unknown tier %d", d.Tier)
	}
}

// Clone returns a deep copy of d. The copy's Secret is independent, so it
// can be wiped without touching d.
func (d *Delegation) Clone() *Delegation {
	c := *d
	c.PairID = append([]byte(nil), d.PairID...)
	c.Secret = append([]byte(nil), d.Secret...)
	c.PSKID = append([]byte(nil), d.PSKID...)
	return &c
}

// Registry keeps delegations in memory, keyed by pair id. Nothing is ever
// persisted. The registry holds its own copy of every delegation and only
// ever wipes that copy; callers get snapshots they own.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Delegation
	lifetime time.Duration
}

// NewRegistry creates a registry whose entries live for lifetime
// (DelegationLifetime when zero).
func NewRegistry(lifetime time.Duration) *Registry {
	if lifetime <= 0 {
		lifetime = DelegationLifetime
	}
	return &Registry{
		entries:  make(map[string]*Delegation),
		lifetime: lifetime,
	}
}

// Put stores a copy of d, replacing and wiping the registry's copy of any
// delegation with the same pair id. d gets the issue and expiry times.
func (r *Registry) Put(d *Delegation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	d.IssuedAt = now.Unix()
	d.ExpiresAt = now.Add(r.lifetime).Unix()
	if old, ok := r.entries[string(d.PairID)]; ok {
		keyschedule.Wipe(old.Secret)
	}
	r.entries[string(d.PairID)] = d.Clone()
}

// Lookup returns a snapshot of the live delegation for pairID. The caller
// owns it and should wipe its Secret when done.
func (r *Registry) Lookup(pairID []byte) (*Delegation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[string(pairID)]
	if !ok {
		return nil, errors.Wrapf(ErrDelegationNotFound, "pair %q", pairID)
	}
	if time.Now().Unix() > d.ExpiresAt {
		return nil, errors.Wrapf(ErrDelegationExpired, "pair %q", pairID)
	}
	return d.Clone(), nil
}

// Revoke drops the delegation for pairID and wipes the registry's copy.
func (r *Registry) Revoke(pairID []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.entries[string(pairID)]; ok {
		keyschedule.Wipe(d.Secret)
		delete(r.entries, string(pairID))
	}
}

// Cleanup removes expired delegations and returns how many it removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Unix()
	removed := 0
	for id, d := range r.entries {
		if now > d.ExpiresAt {
			keyschedule.Wipe(d.Secret)
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored delegations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
