// Package negotiate agrees on a cipher suite between an initiator and a
// responder over a protocol.Conn.
//
// The initiator advertises every algorithm it supports, one packet per id
// (KEM, then KDF, then AEAD), and closes its offer with FINISH. The
// responder intersects the offer with its own catalog, answers with the
// selected KEM, KDF and AEAD ids and a fresh public key for the selected
// KEM, or sends BREAK_CONNECTION when any family has no common algorithm.
package negotiate

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// State is the progress of one side of a negotiation.
type State uint8

const (
	StateIdle State = iota
	StateAdvertising
	StateAwaitingSelection
	StateCollectingOffer
	StateSelecting
	StateResponding
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateAwaitingSelection:
		return "awaiting-selection"
	case StateCollectingOffer:
		return "collecting-offer"
	case StateSelecting:
		return "selecting"
	case StateResponding:
		return "responding"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Agreement is what the initiator learns from a successful negotiation.
type Agreement struct {
	Suite   suite.CipherSuite
	PeerKey agility.PublicKey
}

func duplicate(id protocol.PacketID) error {
	return errors.Wrapf(protocol.ErrUnexpectedPacket, "duplicate %s", id)
}
