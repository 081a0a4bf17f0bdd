package protocol

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotAcknowledged  = errors.New("protocol: packet not acknowledged")
	ErrConnectionBroken = errors.New("protocol: peer broke the connection")
	ErrUnexpectedPacket = errors.Wrap(ErrMalformedPacket, "unexpected packet")
)

// abortTimeout bounds the BREAK_CONNECTION write when the peer is not reading.
const abortTimeout = time.Second

// TransportError reports a failed read or write on the underlying stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "protocol: transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Conn runs the acknowledged packet exchange over a reliable byte stream.
// Every packet except BREAK_CONNECTION is answered with one ack byte.
// A Conn is used by one goroutine at a time.
type Conn struct {
	rw                io.ReadWriter
	compressThreshold int
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithCompression LZ4-encodes byte payloads of at least threshold bytes
// whenever that makes them smaller. Zero disables compression.
func WithCompression(threshold int) ConnOption {
	return func(c *Conn) { c.compressThreshold = threshold }
}

func NewConn(rw io.ReadWriter, opts ...ConnOption) *Conn {
	c := &Conn{rw: rw}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Send writes p and blocks until the peer acknowledges it.
func (c *Conn) Send(p Packet) error {
	if c.compressThreshold > 0 && len(p.Payload) >= c.compressThreshold {
		p = Compressed(p)
	}
	if err := WritePacket(c.rw, p); err != nil {
		if errors.Is(err, ErrMalformedPacket) {
			return err
		}
		return &TransportError{Op: "write " + p.ID.String(), Err: err}
	}
	var ack [1]byte
	if _, err := io.ReadFull(c.rw, ack[:]); err != nil {
		return &TransportError{Op: "read ack for " + p.ID.String(), Err: err}
	}
	switch ack[0] {
	case AckReceived:
		return nil
	case byte(PacketBreakConnection):
		return errors.Wrapf(ErrConnectionBroken, "while sending %s", p.ID)
	default:
		return errors.Wrapf(ErrNotAcknowledged, "%s: ack 0x%02x", p.ID, ack[0])
	}
}

// SendUint16 sends one UTF16 packet per value.
func (c *Conn) SendUint16(id PacketID, vals ...uint16) error {
	for _, v := range vals {
		if err := c.Send(NewUint16Packet(id, v)); err != nil {
			return err
		}
	}
	return nil
}

// SendBytes sends one UTF8 packet.
func (c *Conn) SendBytes(id PacketID, b []byte) error {
	return c.Send(NewBytesPacket(id, b))
}

// Receive reads the next packet and acknowledges it. A packet whose header
// cannot be decoded is answered with AckError. BREAK_CONNECTION is not
// acknowledged and surfaces as ErrConnectionBroken.
func (c *Conn) Receive() (Packet, error) {
	p, err := ReadPacket(c.rw)
	if err != nil {
		if errors.Is(err, ErrMalformedPacket) {
			_ = c.writeAck(AckError)
			return Packet{}, err
		}
		return Packet{}, &TransportError{Op: "read packet", Err: err}
	}
	if p.ID == PacketBreakConnection {
		return Packet{}, ErrConnectionBroken
	}
	if err := c.writeAck(AckReceived); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// ReceiveExpected is Receive restricted to a single packet id.
func (c *Conn) ReceiveExpected(id PacketID) (Packet, error) {
	p, err := c.Receive()
	if err != nil {
		return Packet{}, err
	}
	if p.ID != id {
		return Packet{}, errors.Wrapf(ErrUnexpectedPacket, "want %s, got %s", id, p.ID)
	}
	return p, nil
}

// Abort tells the peer to tear the connection down. It does not wait for
// an acknowledgement.
func (c *Conn) Abort() error {
	if d, ok := c.rw.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = d.SetWriteDeadline(time.Now().Add(abortTimeout))
		defer d.SetWriteDeadline(time.Time{})
	}
	if err := WritePacket(c.rw, Signal(PacketBreakConnection)); err != nil {
		return &TransportError{Op: "write BREAK_CONNECTION", Err: err}
	}
	return nil
}

// Fail aborts the connection because of err and returns err. Nothing is
// sent when err already means the connection is gone.
func (c *Conn) Fail(err error) error {
	var te *TransportError
	if errors.Is(err, ErrConnectionBroken) || errors.As(err, &te) {
		return err
	}
	_ = c.Abort()
	return err
}

func (c *Conn) writeAck(b byte) error {
	if _, err := c.rw.Write([]byte{b}); err != nil {
		return &TransportError{Op: "write ack", Err: err}
	}
	return nil
}
