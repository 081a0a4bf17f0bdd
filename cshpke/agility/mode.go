package agility

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/psk"
)

var ErrModeMaterial = errors.New("agility: mode is missing required key material")

// ModeKind is the RFC 9180 mode identifier.
type ModeKind uint8

const (
	ModeBase    ModeKind = 0x00
	ModePSK     ModeKind = 0x01
	ModeAuth    ModeKind = 0x02
	ModeAuthPSK ModeKind = 0x03
)

func (m ModeKind) String() string {
	switch m {
	case ModeBase:
		return "base"
	case ModePSK:
		return "psk"
	case ModeAuth:
		return "auth"
	case ModeAuthPSK:
		return "auth-psk"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// UsesPSK reports whether the mode mixes in a pre-shared key.
func (m ModeKind) UsesPSK() bool { return m == ModePSK || m == ModeAuthPSK }

// Authenticated reports whether the mode authenticates the sender's KEM key.
func (m ModeKind) Authenticated() bool { return m == ModeAuth || m == ModeAuthPSK }

// ParseMode decodes a mode id.
func ParseMode(v uint8) (ModeKind, error) {
	if v > uint8(ModeAuthPSK) {
		return 0, errors.Errorf("agility: unknown mode %d", v)
	}
	return ModeKind(v), nil
}

// ModeByName resolves "base", "psk", "auth" or "auth-psk".
func ModeByName(name string) (ModeKind, error) {
	for m := ModeBase; m <= ModeAuthPSK; m++ {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, errors.Errorf("agility: unknown mode %q", name)
}

// SenderMode is the sender side of an operation mode with the material the
// mode requires.
type SenderMode struct {
	Kind      ModeKind
	SenderKey *KeyPair
	PSK       psk.Bundle
}

func BaseSender() SenderMode { return SenderMode{Kind: ModeBase} }

func PSKSender(b psk.Bundle) SenderMode { return SenderMode{Kind: ModePSK, PSK: b} }

func AuthSender(kp KeyPair) SenderMode { return SenderMode{Kind: ModeAuth, SenderKey: &kp} }

func AuthPSKSender(kp KeyPair, b psk.Bundle) SenderMode {
	return SenderMode{Kind: ModeAuthPSK, SenderKey: &kp, PSK: b}
}

// ReceiverMode is the receiver side of an operation mode.
type ReceiverMode struct {
	Kind         ModeKind
	SenderPublic *PublicKey
	PSK          psk.Bundle
}

func BaseReceiver() ReceiverMode { return ReceiverMode{Kind: ModeBase} }

func PSKReceiver(b psk.Bundle) ReceiverMode { return ReceiverMode{Kind: ModePSK, PSK: b} }

func AuthReceiver(pk PublicKey) ReceiverMode {
	return ReceiverMode{Kind: ModeAuth, SenderPublic: &pk}
}

func AuthPSKReceiver(pk PublicKey, b psk.Bundle) ReceiverMode {
	return ReceiverMode{Kind: ModeAuthPSK, SenderPublic: &pk, PSK: b}
}
