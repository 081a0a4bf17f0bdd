// Package exchange moves AEAD-protected messages over an established HPKE
// context.
//
// A message is a CIPHERTEXT packet followed by an ASSOCIATED_DATA packet
// (and a TAGBYTES packet in detached mode). The receiver stages packets
// until a message is complete, opens it, and clears its staging buffers
// before the next one. FINISH ends the stream.
package exchange

import (
	"io"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/protocol"
)

// Option configures a Sender or Receiver.
type Option func(*options)

type options struct {
	detached bool
}

// Detached carries the authentication tag in its own TAGBYTES packet.
// Both ends must agree on it.
func Detached() Option {
	return func(o *options) { o.detached = true }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sender seals and sends messages.
type Sender struct {
	conn *protocol.Conn
	ctx  agility.SenderContext
	opts options
}

func NewSender(conn *protocol.Conn, ctx agility.SenderContext, opts ...Option) *Sender {
	return &Sender{conn: conn, ctx: ctx, opts: buildOptions(opts)}
}

// Send seals plaintext under aad and transmits it.
func (s *Sender) Send(plaintext, aad []byte) error {
	if s.opts.detached {
		body, tag, err := s.ctx.SealDetached(plaintext, aad)
		if err != nil {
			return err
		}
		if err := s.conn.SendBytes(protocol.PacketCiphertext, body); err != nil {
			return err
		}
		if err := s.conn.SendBytes(protocol.PacketAssociatedData, aad); err != nil {
			return err
		}
		return s.conn.SendBytes(protocol.PacketTag, tag)
	}

	ct, err := s.ctx.Seal(plaintext, aad)
	if err != nil {
		return err
	}
	if err := s.conn.SendBytes(protocol.PacketCiphertext, ct); err != nil {
		return err
	}
	return s.conn.SendBytes(protocol.PacketAssociatedData, aad)
}

// Close tells the receiver no more messages follow.
func (s *Sender) Close() error {
	return s.conn.Send(protocol.Signal(protocol.PacketFinish))
}

// Receiver receives and opens messages.
type Receiver struct {
	conn *protocol.Conn
	ctx  agility.ReceiverContext
	opts options

	ciphertext, aad, tag []byte
	haveCT, haveAD       bool
	haveTag              bool
}

func NewReceiver(conn *protocol.Conn, ctx agility.ReceiverContext, opts ...Option) *Receiver {
	return &Receiver{conn: conn, ctx: ctx, opts: buildOptions(opts)}
}

// Receive blocks until one whole message has arrived and returns its
// plaintext and associated data. It returns io.EOF once the sender has
// closed the stream. An authentication failure is fatal for the session.
func (r *Receiver) Receive() (plaintext, aad []byte, err error) {
	defer r.reset()
	for !r.complete() {
		p, err := r.conn.Receive()
		if err != nil {
			return nil, nil, err
		}
		if err := r.stage(p); err != nil {
			return nil, nil, err
		}
	}

	if r.opts.detached {
		plaintext, err = r.ctx.OpenDetached(r.ciphertext, r.tag, r.aad)
	} else {
		plaintext, err = r.ctx.Open(r.ciphertext, r.aad)
	}
	if err != nil {
		return nil, nil, err
	}
	return plaintext, r.aad, nil
}

func (r *Receiver) complete() bool {
	return r.haveCT && r.haveAD && (!r.opts.detached || r.haveTag)
}

func (r *Receiver) stage(p protocol.Packet) error {
	var err error
	switch p.ID {
	case protocol.PacketFinish:
		if r.haveCT || r.haveAD || r.haveTag {
			return errors.Wrap(protocol.ErrUnexpectedPacket, "FINISH inside a message")
		}
		return io.EOF
	case protocol.PacketCiphertext:
		if r.haveCT {
			return errors.Wrap(protocol.ErrUnexpectedPacket, "second CIPHERTEXT in one message")
		}
		r.ciphertext, err = p.Bytes()
		r.haveCT = true
	case protocol.PacketAssociatedData:
		if r.haveAD {
			return errors.Wrap(protocol.ErrUnexpectedPacket, "second ASSOCIATED_DATA in one message")
		}
		r.aad, err = p.Bytes()
		r.haveAD = true
	case protocol.PacketTag:
		if !r.opts.detached || r.haveTag {
			return errors.Wrap(protocol.ErrUnexpectedPacket, "TAGBYTES")
		}
		r.tag, err = p.RequireBytes()
		r.haveTag = true
	default:
		return errors.Wrapf(protocol.ErrUnexpectedPacket, "%s during message exchange", p.ID)
	}
	return err
}

func (r *Receiver) reset() {
	r.ciphertext, r.aad, r.tag = nil, nil, nil
	r.haveCT, r.haveAD, r.haveTag = false, false, false
}
