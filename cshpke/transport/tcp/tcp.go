// Package tcp carries packet exchanges over plain TCP connections.
package tcp

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

type Listener struct {
	inner *net.TCPListener
}

func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "tcp: listen %s", addr)
	}
	return &Listener{inner: ln.(*net.TCPListener)}, nil
}

// Accept waits for a connection until ctx is done.
func (l *Listener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.inner.SetDeadline(time.Now())
	})
	conn, err := l.inner.Accept()
	if !stop() {
		// ctx fired; clear the deadline for the next Accept.
		_ = l.inner.SetDeadline(time.Time{})
		if err == nil {
			return conn, nil
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) Close() error { return l.inner.Close() }

// Dial connects to addr.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "tcp: dial %s", addr)
	}
	return conn, nil
}
