// Package transport hides whether a node talks TCP or QUIC. Both give the
// packet layer a reliable, ordered byte stream per connection.
package transport

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/transport/quic"
	"github.com/TheusHen/cshpke/cshpke/transport/tcp"
)

const (
	TCP  = "tcp"
	QUIC = "quic"
)

var ErrUnknownNetwork = errors.New("transport: unknown network")

// Conn is one connection's byte stream.
type Conn interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener accepts connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Listen starts a listener for network ("tcp" or "quic") on addr.
func Listen(network, addr string) (Listener, error) {
	switch network {
	case TCP:
		ln, err := tcp.Listen(addr)
		if err != nil {
			return nil, err
		}
		return tcpListener{ln}, nil
	case QUIC:
		ln, err := quic.Listen(addr)
		if err != nil {
			return nil, err
		}
		return quicListener{ln}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownNetwork, "%q", network)
	}
}

// Dial connects to addr over network.
func Dial(ctx context.Context, network, addr string) (Conn, error) {
	switch network {
	case TCP:
		return tcp.Dial(ctx, addr)
	case QUIC:
		conn, err := quic.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, errors.Wrapf(ErrUnknownNetwork, "%q", network)
	}
}

type tcpListener struct{ *tcp.Listener }

func (l tcpListener) Accept(ctx context.Context) (Conn, error) {
	return l.Listener.Accept(ctx)
}

type quicListener struct{ *quic.Listener }

func (l quicListener) Accept(ctx context.Context) (Conn, error) {
	conn, err := l.Listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
