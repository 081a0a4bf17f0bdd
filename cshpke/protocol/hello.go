package protocol

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// Role announces what a connecting party wants from the listener.
type Role uint8

const (
	// RoleClient opens a direct HPKE session and then sends messages.
	RoleClient Role = 1
	// RolePrimaryClient pairs with a primary server and derives the root secret.
	RolePrimaryClient Role = 2
	// RoleSecondaryClient asks a primary client for its delegated role key,
	// or opens a secondary session with a secondary server.
	RoleSecondaryClient Role = 3
	// RoleSecondaryServer asks a primary server for its delegated pair key.
	RoleSecondaryServer Role = 4
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RolePrimaryClient:
		return "primary-client"
	case RoleSecondaryClient:
		return "secondary-client"
	case RoleSecondaryServer:
		return "secondary-server"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) valid() bool { return r >= RoleClient && r <= RoleSecondaryServer }

// maxHelloLabel is the longest pair or participant id a HELLO can carry.
const maxHelloLabel = 255

// Hello is the first packet on every connection.
// Payload:
//
//	1 byte: role
//	1 byte: HPKE mode
//	1 byte length + pair id
//	1 byte length + participant id
type Hello struct {
	Role          Role
	Mode          uint8
	PairID        []byte
	ParticipantID []byte
}

// Packet encodes h as a HELLO packet.
func (h Hello) Packet() (Packet, error) {
	if !h.Role.valid() {
		return Packet{}, errors.Errorf("protocol: invalid hello role %d", uint8(h.Role))
	}
	if len(h.PairID) > maxHelloLabel || len(h.ParticipantID) > maxHelloLabel {
		return Packet{}, errors.New("protocol: hello label longer than 255 bytes")
	}
	var b cryptobyte.Builder
	b.AddUint8(uint8(h.Role))
	b.AddUint8(h.Mode)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(h.PairID) })
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(h.ParticipantID) })
	payload, err := b.Bytes()
	if err != nil {
		return Packet{}, err
	}
	return NewBytesPacket(PacketHello, payload), nil
}

// DecodeHello parses a HELLO packet.
func DecodeHello(p Packet) (Hello, error) {
	if p.ID != PacketHello {
		return Hello{}, errors.Wrapf(ErrUnexpectedPacket, "want HELLO, got %s", p.ID)
	}
	payload, err := p.RequireBytes()
	if err != nil {
		return Hello{}, err
	}
	s := cryptobyte.String(payload)
	var role, mode uint8
	var pair, participant cryptobyte.String
	if !s.ReadUint8(&role) || !s.ReadUint8(&mode) ||
		!s.ReadUint8LengthPrefixed(&pair) || !s.ReadUint8LengthPrefixed(&participant) || !s.Empty() {
		return Hello{}, errors.Wrap(ErrMalformedPacket, "hello payload")
	}
	h := Hello{
		Role:          Role(role),
		Mode:          mode,
		PairID:        append([]byte(nil), pair...),
		ParticipantID: append([]byte(nil), participant...),
	}
	if !h.Role.valid() {
		return Hello{}, errors.Wrapf(ErrMalformedPacket, "hello role %d", role)
	}
	return h, nil
}

// SendHello writes h and waits for the acknowledgement.
func (c *Conn) SendHello(h Hello) error {
	p, err := h.Packet()
	if err != nil {
		return err
	}
	return c.Send(p)
}

// ReceiveHello reads the opening HELLO of a connection.
func (c *Conn) ReceiveHello() (Hello, error) {
	p, err := c.Receive()
	if err != nil {
		return Hello{}, err
	}
	return DecodeHello(p)
}
