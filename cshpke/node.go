package cshpke

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"github.com/TheusHen/cshpke/cshpke/keyschedule"
	"github.com/TheusHen/cshpke/cshpke/protocol"
	"github.com/TheusHen/cshpke/cshpke/session"
	"github.com/TheusHen/cshpke/cshpke/suite"
	"github.com/TheusHen/cshpke/cshpke/transport"
)

var (
	ErrNotListening = errors.New("cshpke: node is not listening")
	ErrWrongRole    = errors.New("cshpke: operation not available for this node role")
)

// cleanupInterval is how often Serve drops expired delegations.
const cleanupInterval = time.Minute

// Serve backs off between failed accepts, doubling from minAcceptDelay up
// to maxAcceptDelay.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Role is what a node does in a deployment.
type Role string

const (
	RolePrimaryServer   Role = "primary-server"
	RolePrimaryClient   Role = "primary-client"
	RoleSecondaryServer Role = "secondary-server"
	RoleSecondaryClient Role = "secondary-client"
	// RoleClient only dials direct sessions.
	RoleClient Role = "client"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePrimaryServer, RolePrimaryClient, RoleSecondaryServer, RoleSecondaryClient, RoleClient:
		return r, nil
	default:
		return "", errors.Errorf("cshpke: unknown role %q", s)
	}
}

// Message is one plaintext delivered by an inbound session.
type Message struct {
	From      string
	Role      protocol.Role
	Suite     suite.CipherSuite
	Plaintext []byte
	AAD       []byte
}

type Options struct {
	Role    Role
	Network string
	Session session.Options
	// Compression is the LZ4 threshold for outgoing payloads; zero
	// disables it.
	Compression int
	// AcceptRate caps accepted connections per second; zero means no cap.
	AcceptRate int
	// DelegationLifetime bounds how long pairings and delegations stay
	// usable.
	DelegationLifetime time.Duration
	OnMessage          func(Message)
}

// Node is a long-running participant of a deployment.
type Node struct {
	opts     Options
	registry *session.Registry
	limiter  ratelimit.Limiter

	listener transport.Listener
	closed   atomic.Bool
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[transport.Conn]struct{}
}

func NewNode(opts Options) *Node {
	if opts.Network == "" {
		opts.Network = transport.TCP
	}
	limiter := ratelimit.NewUnlimited()
	if opts.AcceptRate > 0 {
		limiter = ratelimit.New(opts.AcceptRate)
	}
	return &Node{
		opts:     opts,
		registry: session.NewRegistry(opts.DelegationLifetime),
		limiter:  limiter,
		conns:    make(map[transport.Conn]struct{}),
	}
}

func (n *Node) Role() Role { return n.opts.Role }

// Registry holds the pairings and delegations this node knows about.
func (n *Node) Registry() *session.Registry { return n.registry }

func (n *Node) Listen(addr string) error {
	ln, err := transport.Listen(n.opts.Network, addr)
	if err != nil {
		return err
	}
	n.listener = ln
	jww.INFO.Printf("%s listening on %s/%s", n.opts.Role, n.opts.Network, ln.Addr())
	return nil
}

func (n *Node) ListenAddr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Serve accepts connections until ctx is done or the node is closed. Each
// connection is handled on its own goroutine and its failures stay local
// to it.
func (n *Node) Serve(ctx context.Context) error {
	if n.listener == nil {
		return ErrNotListening
	}
	defer n.wg.Wait()

	go n.cleanup(ctx)
	var delay time.Duration
	for {
		n.limiter.Take()
		conn, err := n.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || n.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = min(max(2*delay, minAcceptDelay), maxAcceptDelay)
			jww.WARN.Printf("%s: accept: %v; retrying in %s", n.opts.Role, err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		n.track(conn)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			defer n.untrack(conn)
			if err := n.handle(conn); err != nil {
				jww.WARN.Printf("%s: connection from %s: %v", n.opts.Role, conn.RemoteAddr(), err)
			}
		}()
	}
}

// Close stops the listener and every open connection.
func (n *Node) Close() error {
	n.closed.Store(true)
	var err error
	if n.listener != nil {
		err = n.listener.Close()
	}
	n.mu.Lock()
	for c := range n.conns {
		_ = c.Close()
	}
	n.mu.Unlock()
	return err
}

func (n *Node) cleanup(ctx context.Context) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n.closed.Load() {
				return
			}
			if removed := n.registry.Cleanup(); removed > 0 {
				jww.DEBUG.Printf("%s: dropped %d expired delegations", n.opts.Role, removed)
			}
		}
	}
}

func (n *Node) track(c transport.Conn) {
	n.mu.Lock()
	n.conns[c] = struct{}{}
	n.mu.Unlock()
}

func (n *Node) untrack(c transport.Conn) {
	n.mu.Lock()
	delete(n.conns, c)
	n.mu.Unlock()
	_ = c.Close()
}

func (n *Node) newConn(c transport.Conn) *protocol.Conn {
	return protocol.NewConn(c, protocol.WithCompression(n.opts.Compression))
}

// handle dispatches one inbound connection by the caller's HELLO.
func (n *Node) handle(c transport.Conn) error {
	conn := n.newConn(c)
	hello, err := conn.ReceiveHello()
	if err != nil {
		return conn.Fail(err)
	}
	jww.DEBUG.Printf("%s: HELLO from %s as %s", n.opts.Role, c.RemoteAddr(), hello.Role)

	switch {
	case n.opts.Role == RolePrimaryServer && hello.Role == protocol.RoleClient:
		sess, err := session.ServerHandshake(conn, hello, n.opts.Session)
		if err != nil {
			return err
		}
		return n.drain(c, sess)

	case n.opts.Role == RolePrimaryServer && hello.Role == protocol.RolePrimaryClient:
		d, err := session.PrimaryServerHandshake(conn, hello, n.opts.Session)
		if err != nil {
			return err
		}
		n.registry.Put(d)
		keyschedule.Wipe(d.Secret)
		jww.INFO.Printf("%s: paired %q (%s)", n.opts.Role, d.PairID, d.Suite)
		return nil

	case n.opts.Role == RolePrimaryServer && hello.Role == protocol.RoleSecondaryServer,
		n.opts.Role == RolePrimaryClient && hello.Role == protocol.RoleSecondaryClient:
		d, err := n.registry.Lookup(hello.PairID)
		if err != nil {
			return conn.Fail(err)
		}
		defer keyschedule.Wipe(d.Secret)
		return session.Deliver(conn, hello, d)

	case n.opts.Role == RoleSecondaryServer && hello.Role == protocol.RoleSecondaryClient:
		d, err := n.registry.Lookup(hello.PairID)
		if err != nil {
			return conn.Fail(err)
		}
		defer keyschedule.Wipe(d.Secret)
		opts := n.opts.Session
		opts.FiveTuple = fiveTuple(c, false, opts.FiveTuple)
		sess, err := session.SecondaryServerHandshake(conn, hello, d, opts)
		if err != nil {
			return err
		}
		return n.drain(c, sess)

	default:
		return conn.Fail(errors.Wrapf(session.ErrUnexpectedRole, "%s does not serve %s", n.opts.Role, hello.Role))
	}
}

func (n *Node) drain(c transport.Conn, sess *session.Session) error {
	from := c.RemoteAddr().String()
	for {
		pt, aad, err := sess.Receive()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n.opts.OnMessage != nil {
			n.opts.OnMessage(Message{From: from, Role: sess.Role(), Suite: sess.Suite(), Plaintext: pt, AAD: aad})
		}
	}
}

// Pair runs the primary pairing against the primary server at addr and
// stores the pairing.
func (n *Node) Pair(ctx context.Context, addr string) (*session.Delegation, error) {
	if n.opts.Role != RolePrimaryClient {
		return nil, errors.Wrapf(ErrWrongRole, "%s cannot pair", n.opts.Role)
	}
	c, err := transport.Dial(ctx, n.opts.Network, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var d *session.Delegation
	err = bound(ctx, c, func() (err error) {
		d, err = session.PrimaryClientHandshake(n.newConn(c), n.opts.Session)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.registry.Put(d)
	jww.INFO.Printf("%s: paired %q with %s (%s)", n.opts.Role, d.PairID, addr, d.Suite)
	return d, nil
}

// Enroll fetches this secondary node's delegation from the primary at
// addr and stores it.
func (n *Node) Enroll(ctx context.Context, addr string) (*session.Delegation, error) {
	var role protocol.Role
	switch n.opts.Role {
	case RoleSecondaryClient:
		role = protocol.RoleSecondaryClient
	case RoleSecondaryServer:
		role = protocol.RoleSecondaryServer
	default:
		return nil, errors.Wrapf(ErrWrongRole, "%s cannot enroll", n.opts.Role)
	}
	c, err := transport.Dial(ctx, n.opts.Network, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var d *session.Delegation
	err = bound(ctx, c, func() (err error) {
		d, err = session.RequestDelegation(n.newConn(c), role, n.opts.Session)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.registry.Put(d)
	jww.INFO.Printf("%s: enrolled in %q via %s", n.opts.Role, d.PairID, addr)
	return d, nil
}

// Channel is an outbound session together with the connection it owns.
type Channel struct {
	*session.Session
	conn transport.Conn
}

// Close sends FINISH and closes the connection.
func (ch *Channel) Close() error {
	err := ch.Session.Close()
	if cerr := ch.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Connect opens an outbound session to addr: a secondary session for a
// secondary client, a direct session otherwise.
func (n *Node) Connect(ctx context.Context, addr string) (*Channel, error) {
	c, err := transport.Dial(ctx, n.opts.Network, addr)
	if err != nil {
		return nil, err
	}
	conn := n.newConn(c)

	var sess *session.Session
	err = bound(ctx, c, func() (err error) {
		switch n.opts.Role {
		case RoleSecondaryClient:
			d, err := n.registry.Lookup(n.opts.Session.PairID)
			if err != nil {
				return err
			}
			defer keyschedule.Wipe(d.Secret)
			opts := n.opts.Session
			opts.FiveTuple = fiveTuple(c, true, opts.FiveTuple)
			sess, err = session.SecondaryClientHandshake(conn, d, opts)
			return err
		case RoleClient, RolePrimaryClient:
			sess, err = session.ClientHandshake(conn, n.opts.Session)
			return err
		default:
			return errors.Wrapf(ErrWrongRole, "%s cannot open a session", n.opts.Role)
		}
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Channel{Session: sess, conn: c}, nil
}

// bound runs fn, closing c if ctx is done first. A handshake cut short
// that way reports the context error.
func bound(ctx context.Context, c transport.Conn, fn func() error) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	err := fn()
	if !stop() {
		return errors.Wrap(ctx.Err(), "cshpke: handshake interrupted")
	}
	return err
}

// fiveTuple labels a TCP connection by its endpoints, client first. Other
// transports report wildcard local addresses, so they keep the fallback.
func fiveTuple(c transport.Conn, dialer bool, fallback []byte) []byte {
	local, lok := c.LocalAddr().(*net.TCPAddr)
	remote, rok := c.RemoteAddr().(*net.TCPAddr)
	if !lok || !rok {
		return fallback
	}
	ft := keyschedule.FiveTuple{Protocol: "tcp", Client: remote.AddrPort(), Server: local.AddrPort()}
	if dialer {
		ft.Client, ft.Server = local.AddrPort(), remote.AddrPort()
	}
	label, err := ft.Label()
	if err != nil {
		return fallback
	}
	return label
}
