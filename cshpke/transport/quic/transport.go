// Package quic carries packet exchanges over QUIC. Every connection holds
// exactly one bidirectional stream, opened by the dialer.
package quic

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	q "github.com/quic-go/quic-go"
)

// lingerTimeout bounds how long Close waits for the peer to read the last
// bytes before the connection is torn down.
const lingerTimeout = 250 * time.Millisecond

const (
	codeNoError  q.ApplicationErrorCode = 0
	codeNoStream q.ApplicationErrorCode = 1
)

var quicConfig = &q.Config{
	MaxIdleTimeout:  30 * time.Second,
	KeepAlivePeriod: 10 * time.Second,
}

// Conn is a QUIC connection reduced to its single stream.
type Conn struct {
	conn   q.Connection
	stream q.Stream
}

func (c *Conn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *Conn) Write(b []byte) (int, error) { return c.stream.Write(b) }

func (c *Conn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close finishes the stream and closes the connection once the peer has
// closed its side or lingerTimeout passed.
func (c *Conn) Close() error {
	_ = c.stream.Close()
	t := time.NewTimer(lingerTimeout)
	defer t.Stop()
	select {
	case <-c.conn.Context().Done():
	case <-t.C:
	}
	return c.conn.CloseWithError(codeNoError, "")
}

// streamTimeout bounds how long an accepted connection may go without
// opening its stream.
const streamTimeout = 10 * time.Second

// Listener hands out connections once their stream is open. Connections
// are accepted on a background goroutine and each waits for its stream on
// its own, so a peer that never opens one only holds up itself.
type Listener struct {
	inner *q.Listener
	ready chan *Conn
	done  chan struct{}
	err   error // set before done is closed
}

func Listen(addr string) (*Listener, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "quic: listen %s", addr)
	}
	l := &Listener{inner: ln, ready: make(chan *Conn), done: make(chan struct{})}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	defer close(l.done)
	for {
		conn, err := l.inner.Accept(context.Background())
		if err != nil {
			l.err = errors.Wrap(err, "quic: accept")
			return
		}
		go l.acceptStream(conn)
	}
}

func (l *Listener) acceptStream(conn q.Connection) {
	ctx, cancel := context.WithTimeout(conn.Context(), streamTimeout)
	defer cancel()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeNoStream, "no stream")
		return
	}
	select {
	case l.ready <- &Conn{conn: conn, stream: stream}:
	case <-l.done:
		_ = conn.CloseWithError(codeNoError, "listener closed")
	}
}

// Accept waits for a connection whose stream is open.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case <-l.done:
		return nil, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) Close() error { return l.inner.Close() }

// Dial connects to addr and opens the connection's stream.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, err
	}
	conn, err := q.DialAddr(ctx, addr, tlsConf, quicConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "quic: dial %s", addr)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeNoStream, "no stream")
		return nil, errors.Wrap(err, "quic: open stream")
	}
	return &Conn{conn: conn, stream: stream}, nil
}
