// Package session runs the handshakes that turn a fresh connection into
// an HPKE-protected message channel, and the four-party flows that hand a
// pairing's keys down to secondary nodes.
//
// Every connection opens with a HELLO naming the caller's role. A direct
// client negotiates a suite and sets up HPKE in the mode it announced. A
// primary client pairs with a primary server and both derive a pair key
// from an AuthPSK exporter secret. Secondary nodes fetch their tier of the
// hierarchy from their primary and then open AuthPSK sessions keyed by a
// per-connection session key.
package session

import (
	"io"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/agility"
	"github.com/TheusHen/cshpke/cshpke/exchange"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// Session is one established, one-way message channel. The side that ran
// the HPKE sender setup sends; the other side receives.
type Session struct {
	role     protocol.Role
	suite    suite.CipherSuite
	mode     agility.ModeKind
	conn     *protocol.Conn
	sender   *exchange.Sender
	receiver *exchange.Receiver
}

func newSendingSession(conn *protocol.Conn, role protocol.Role, mode agility.ModeKind, ctx agility.SenderContext, opts Options) *Session {
	return &Session{
		role:   role,
		suite:  ctx.Suite(),
		mode:   mode,
		conn:   conn,
		sender: exchange.NewSender(conn, ctx, exchangeOptions(opts)...),
	}
}

func newReceivingSession(conn *protocol.Conn, role protocol.Role, mode agility.ModeKind, ctx agility.ReceiverContext, opts Options) *Session {
	return &Session{
		role:     role,
		suite:    ctx.Suite(),
		mode:     mode,
		conn:     conn,
		receiver: exchange.NewReceiver(conn, ctx, exchangeOptions(opts)...),
	}
}

func exchangeOptions(opts Options) []exchange.Option {
	if opts.Detached {
		return []exchange.Option{exchange.Detached()}
	}
	return nil
}

func (s *Session) Suite() suite.CipherSuite { return s.suite }

func (s *Session) Mode() agility.ModeKind { return s.mode }

// Role is the role the client side announced in its HELLO.
func (s *Session) Role() protocol.Role { return s.role }

// CanSend reports whether this end holds the sending context.
func (s *Session) CanSend() bool { return s.sender != nil }

// Send seals and transmits one message.
func (s *Session) Send(plaintext, aad []byte) error {
	if s.sender == nil {
		return errors.Wrap(ErrWrongDirection, "send")
	}
	return s.sender.Send(plaintext, aad)
}

// Receive returns the next message, or io.EOF once the peer closed the
// stream. Any other error ends the session; the peer is told to break the
// connection unless it already did.
func (s *Session) Receive() (plaintext, aad []byte, err error) {
	if s.receiver == nil {
		return nil, nil, errors.Wrap(ErrWrongDirection, "receive")
	}
	plaintext, aad, err = s.receiver.Receive()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, s.conn.Fail(err)
	}
	return plaintext, aad, err
}

// Close ends a sending session with FINISH. It is a no-op on the receiving
// side.
func (s *Session) Close() error {
	if s.sender == nil {
		return nil
	}
	return s.sender.Close()
}
