// Package config reads node settings through viper and turns them into the
// domain types the session layer consumes.
package config

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/negotiate"
	"github.com/TheusHen/cshpke/cshpke/psk"
	"github.com/TheusHen/cshpke/cshpke/session"
	"github.com/TheusHen/cshpke/cshpke/suite"
	"github.com/TheusHen/cshpke/cshpke/transport"
)

// Viper keys. They double as CLI flag names.
const (
	KeyNetwork       = "network"
	KeyListen        = "listen"
	KeyPeer          = "peer"
	KeyPrimary       = "primary"
	KeyKEMs          = "kems"
	KeyKDFs          = "kdfs"
	KeyAEADs         = "aeads"
	KeyPolicy        = "policy"
	KeyMode          = "mode"
	KeyPSKID         = "psk-id"
	KeyPSKs          = "psks"
	KeyPairID        = "pair-id"
	KeyParticipantID = "participant-id"
	KeyInfo          = "info"
	KeyFiveTuple     = "five-tuple"
	KeyDetached      = "detached"
	KeyCompression   = "compression"
	KeyAcceptRate    = "accept-rate"
	KeyLogLevel      = "log-level"
	KeyLogFile       = "log-file"
)

// Config is the flat set of node settings.
type Config struct {
	Network string
	Listen  string
	// Peer is the node this one connects to for its main exchange.
	Peer string
	// Primary is where a secondary node fetches its delegation.
	Primary       string
	KEMs          []string
	KDFs          []string
	AEADs         []string
	Policy        string
	Mode          string
	PSKID         uint8
	PSKs          []string
	PairID        string
	ParticipantID string
	Info          string
	FiveTuple     string
	Detached      bool
	Compression   int
	AcceptRate    int
	LogLevel      uint
	LogFile       string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	def := suite.Default()
	v.SetDefault(KeyNetwork, transport.TCP)
	v.SetDefault(KeyListen, "127.0.0.1:8888")
	v.SetDefault(KeyKEMs, kemNames(def.KEMs))
	v.SetDefault(KeyKDFs, kdfNames(def.KDFs))
	v.SetDefault(KeyAEADs, aeadNames(def.AEADs))
	v.SetDefault(KeyPolicy, negotiate.PolicyResponderPreference.String())
	v.SetDefault(KeyMode, agility.ModePSK.String())
	v.SetDefault(KeyPSKID, 1)
	v.SetDefault(KeyInfo, string(session.DefaultInfo))
	v.SetDefault(KeyFiveTuple, string(session.DefaultFiveTuple))
	v.SetDefault(KeyAcceptRate, 100)
	v.SetDefault(KeyLogFile, "-")
}

// Load reads every key from v, falling back to the registered defaults.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	pskID := v.GetUint(KeyPSKID)
	if pskID > 255 {
		return Config{}, errors.Errorf("config: %s %d does not fit in one byte", KeyPSKID, pskID)
	}
	c := Config{
		Network:       v.GetString(KeyNetwork),
		Listen:        v.GetString(KeyListen),
		Peer:          v.GetString(KeyPeer),
		Primary:       v.GetString(KeyPrimary),
		KEMs:          v.GetStringSlice(KeyKEMs),
		KDFs:          v.GetStringSlice(KeyKDFs),
		AEADs:         v.GetStringSlice(KeyAEADs),
		Policy:        v.GetString(KeyPolicy),
		Mode:          v.GetString(KeyMode),
		PSKID:         uint8(pskID),
		PSKs:          v.GetStringSlice(KeyPSKs),
		PairID:        v.GetString(KeyPairID),
		ParticipantID: v.GetString(KeyParticipantID),
		Info:          v.GetString(KeyInfo),
		FiveTuple:     v.GetString(KeyFiveTuple),
		Detached:      v.GetBool(KeyDetached),
		Compression:   v.GetInt(KeyCompression),
		AcceptRate:    v.GetInt(KeyAcceptRate),
		LogLevel:      v.GetUint(KeyLogLevel),
		LogFile:       v.GetString(KeyLogFile),
	}
	switch c.Network {
	case transport.TCP, transport.QUIC:
	default:
		return Config{}, errors.Wrapf(transport.ErrUnknownNetwork, "%q", c.Network)
	}
	return c, nil
}

// Catalog resolves the configured algorithm names.
func (c Config) Catalog() (suite.Catalog, error) {
	var cat suite.Catalog
	for _, n := range c.KEMs {
		id, err := suite.KemByName(strings.TrimSpace(n))
		if err != nil {
			return suite.Catalog{}, err
		}
		cat.KEMs = append(cat.KEMs, id)
	}
	for _, n := range c.KDFs {
		id, err := suite.KdfByName(strings.TrimSpace(n))
		if err != nil {
			return suite.Catalog{}, err
		}
		cat.KDFs = append(cat.KDFs, id)
	}
	for _, n := range c.AEADs {
		id, err := suite.AeadByName(strings.TrimSpace(n))
		if err != nil {
			return suite.Catalog{}, err
		}
		cat.AEADs = append(cat.AEADs, id)
	}
	if err := cat.Validate(); err != nil {
		return suite.Catalog{}, err
	}
	return cat, nil
}

// PSKTable builds the pre-shared key table from "id:hex" entries, or
// returns the built-in table when none are configured.
func (c Config) PSKTable() (psk.Lookup, error) {
	if len(c.PSKs) == 0 {
		return psk.Default(), nil
	}
	entries := make([]psk.Entry, 0, len(c.PSKs))
	for _, raw := range c.PSKs {
		idStr, secretHex, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			return nil, errors.Errorf("config: psk entry %q is not id:hex", raw)
		}
		id, err := strconv.ParseUint(idStr, 10, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "config: psk id %q", idStr)
		}
		secret, err := hex.DecodeString(secretHex)
		if err != nil {
			return nil, errors.Wrapf(err, "config: psk %d", id)
		}
		entries = append(entries, psk.Entry{ID: uint8(id), Secret: secret})
	}
	return psk.NewTable(entries...)
}

// SessionOptions assembles handshake options. The five-tuple label set
// here is only the fallback; TCP connections bind their real endpoints.
func (c Config) SessionOptions() (session.Options, error) {
	cat, err := c.Catalog()
	if err != nil {
		return session.Options{}, err
	}
	policy, err := negotiate.PolicyByName(c.Policy)
	if err != nil {
		return session.Options{}, err
	}
	mode, err := agility.ModeByName(c.Mode)
	if err != nil {
		return session.Options{}, err
	}
	table, err := c.PSKTable()
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		Catalog:       cat,
		Policy:        policy,
		PSKs:          table,
		PSKID:         c.PSKID,
		Mode:          mode,
		Info:          []byte(c.Info),
		PairID:        []byte(c.PairID),
		ParticipantID: []byte(c.ParticipantID),
		FiveTuple:     []byte(c.FiveTuple),
		Detached:      c.Detached,
	}, nil
}

func kemNames(ids []suite.KemID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func kdfNames(ids []suite.KdfID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func aeadNames(ids []suite.AeadID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
