package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

const (
	// HeaderSize is id (1) + encoding (1) + payload length (4).
	HeaderSize = 6
	// MaxPacketPayload limits a single packet payload.
	MaxPacketPayload = 1 << 20 // 1 MiB
)

var (
	ErrMalformedPacket = errors.New("protocol: malformed packet")
	ErrUnknownPacket   = errors.Wrap(ErrMalformedPacket, "unknown packet id")
	ErrWrongEncoding   = errors.Wrap(ErrMalformedPacket, "unexpected payload encoding")
	ErrEmptyPayload    = errors.Wrap(ErrMalformedPacket, "empty payload")
	ErrPayloadTooLarge = errors.Wrap(ErrMalformedPacket, "payload too large")
)

// Packet is the unit of transmission.
// Format:
//
//	1 byte: id
//	1 byte: encoding
//	4 bytes: payload length (big endian)
//	N bytes: payload
type Packet struct {
	ID       PacketID
	Encoding Encoding
	Payload  []byte
}

// NewBytesPacket builds a UTF8 packet carrying b.
func NewBytesPacket(id PacketID, b []byte) Packet {
	return Packet{ID: id, Encoding: EncodingUTF8, Payload: b}
}

// NewUint16Packet builds a UTF16 packet carrying vals as big-endian uint16s.
func NewUint16Packet(id PacketID, vals ...uint16) Packet {
	payload := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint16(payload[2*i:], v)
	}
	return Packet{ID: id, Encoding: EncodingUTF16, Payload: payload}
}

// Signal builds an empty packet such as FINISH or BREAK_CONNECTION.
func Signal(id PacketID) Packet {
	return Packet{ID: id, Encoding: EncodingUTF8}
}

// Uint16s decodes a UTF16 payload. The payload must be non-empty and of
// even length.
func (p Packet) Uint16s() ([]uint16, error) {
	if p.Encoding != EncodingUTF16 {
		return nil, errors.Wrapf(ErrWrongEncoding, "%s: want UTF16, got %s", p.ID, p.Encoding)
	}
	if len(p.Payload) == 0 {
		return nil, errors.Wrapf(ErrEmptyPayload, "%s", p.ID)
	}
	if len(p.Payload)%2 != 0 {
		return nil, errors.Wrapf(ErrMalformedPacket, "%s: odd UTF16 payload length %d", p.ID, len(p.Payload))
	}
	out := make([]uint16, len(p.Payload)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(p.Payload[2*i:])
	}
	return out, nil
}

// Uint16 decodes a UTF16 payload holding exactly one element.
func (p Packet) Uint16() (uint16, error) {
	vals, err := p.Uint16s()
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, errors.Wrapf(ErrMalformedPacket, "%s: want one element, got %d", p.ID, len(vals))
	}
	return vals[0], nil
}

// Bytes decodes a UTF8 or LZ4 payload. An empty payload is allowed.
func (p Packet) Bytes() ([]byte, error) {
	switch p.Encoding {
	case EncodingUTF8:
		return p.Payload, nil
	case EncodingLZ4:
		return decompress(p.Payload)
	default:
		return nil, errors.Wrapf(ErrWrongEncoding, "%s: want bytes, got %s", p.ID, p.Encoding)
	}
}

// RequireBytes is Bytes for payloads that must not be empty.
func (p Packet) RequireBytes() ([]byte, error) {
	b, err := p.Bytes()
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.Wrapf(ErrEmptyPayload, "%s", p.ID)
	}
	return b, nil
}

// Marshal encodes the packet including its header.
func (p Packet) Marshal() ([]byte, error) {
	if !p.ID.Known() {
		return nil, errors.Wrapf(ErrUnknownPacket, "id %d", uint8(p.ID))
	}
	if !p.Encoding.valid() {
		return nil, errors.Wrapf(ErrWrongEncoding, "encoding %d", uint8(p.Encoding))
	}
	if len(p.Payload) > MaxPacketPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(p.Payload))
	}
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, HeaderSize+len(p.Payload)))
	b.AddUint8(uint8(p.ID))
	b.AddUint8(uint8(p.Encoding))
	b.AddUint32(uint32(len(p.Payload)))
	b.AddBytes(p.Payload)
	return b.Bytes()
}

// Unmarshal decodes exactly one packet from b.
func Unmarshal(b []byte) (Packet, error) {
	s := cryptobyte.String(b)
	p, n, err := parseHeader(&s)
	if err != nil {
		return Packet{}, err
	}
	var payload []byte
	if !s.ReadBytes(&payload, int(n)) {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "truncated payload")
	}
	if !s.Empty() {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "trailing bytes")
	}
	p.Payload = append([]byte(nil), payload...)
	return p, nil
}

func parseHeader(s *cryptobyte.String) (Packet, uint32, error) {
	var id, enc uint8
	var n uint32
	if !s.ReadUint8(&id) || !s.ReadUint8(&enc) || !s.ReadUint32(&n) {
		return Packet{}, 0, errors.Wrap(ErrMalformedPacket, "truncated header")
	}
	p := Packet{ID: PacketID(id), Encoding: Encoding(enc)}
	if !p.ID.Known() {
		return Packet{}, 0, errors.Wrapf(ErrUnknownPacket, "id %d", id)
	}
	if !p.Encoding.valid() {
		return Packet{}, 0, errors.Wrapf(ErrWrongEncoding, "encoding %d", enc)
	}
	if n > MaxPacketPayload {
		return Packet{}, 0, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", n)
	}
	return p, n, nil
}

// WritePacket writes p to w in a single Write call.
func WritePacket(w io.Writer, p Packet) error {
	buf, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadPacket reads exactly one packet from r and never reads past its end.
// Header problems are reported as ErrMalformedPacket; I/O problems are
// returned unchanged.
func ReadPacket(r io.Reader) (Packet, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, err
	}
	s := cryptobyte.String(hdr[:])
	p, n, err := parseHeader(&s)
	if err != nil {
		return Packet{}, err
	}
	p.Payload = make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, p.Payload); err != nil {
			return Packet{}, err
		}
	}
	return p, nil
}
