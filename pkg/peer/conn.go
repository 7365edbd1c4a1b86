package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/bitwire/internal/logger"
)

const (
	// DefaultDialTimeout bounds TCP connection setup.
	DefaultDialTimeout = 5 * time.Second
	// DefaultHandshakeTimeout bounds the base handshake exchange.
	DefaultHandshakeTimeout = 20 * time.Second
	// DefaultReadTimeout is the idle limit between two messages. Peers
	// keep alive every two minutes.
	DefaultReadTimeout = 3 * time.Minute
)

// ConnState is the lifecycle of a peer connection.
type ConnState uint8

const (
	ConnAwaitingHandshake ConnState = iota
	ConnHandshakeComplete
	ConnAwaitingExtendedHandshake
	ConnExtensionsNegotiated
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnAwaitingHandshake:
		return "awaiting-handshake"
	case ConnHandshakeComplete:
		return "handshake-complete"
	case ConnAwaitingExtendedHandshake:
		return "awaiting-extended-handshake"
	case ConnExtensionsNegotiated:
		return "extensions-negotiated"
	case ConnClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", uint8(s))
	}
}

// ConnConfig describes the local side of a connection.
type ConnConfig struct {
	InfoHash Hash
	PeerID   Hash
	// ExpectedPeerID is checked on outbound connections when known.
	ExpectedPeerID *Hash
	Reserved       Reserved
	// Extensions is the BEP 10 table we advertise. A non-empty table sets
	// the extension bit.
	Extensions       map[string]uint8
	ClientName       string
	MetadataSize     int64
	MaxMessageLen    uint32
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
}

func (cfg ConnConfig) withDefaults() ConnConfig {
	if cfg.MaxMessageLen == 0 {
		cfg.MaxMessageLen = DefaultMaxMessageLen
	}

	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	if len(cfg.Extensions) > 0 {
		cfg.Reserved.SetExtended()
	}

	return cfg
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type addresser interface {
	RemoteAddr() net.Addr
}

// Conn is a peer connection past its base handshake. Reads must come from
// a single goroutine; writes may come from any.
type Conn struct {
	id     uuid.UUID
	rw     io.ReadWriteCloser
	r      *Reader
	w      *Writer
	wmu    sync.Mutex
	cfg    ConnConfig
	role   Role
	remote string
	result HandshakeResult

	mu    sync.Mutex
	state ConnState
	ext   *Extensions

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to addr and performs the handshake as initiator.
func Dial(ctx context.Context, addr string, cfg ConnConfig) (*Conn, error) {
	dialer := &net.Dialer{Timeout: DefaultDialTimeout}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return NewConn(ctx, netConn, Initiator, cfg)
}

// Accept takes the next connection from l and performs the handshake as
// responder.
func Accept(ctx context.Context, l net.Listener, cfg ConnConfig) (*Conn, error) {
	netConn, err := l.Accept()
	if err != nil {
		return nil, err
	}

	return NewConn(ctx, netConn, Responder, cfg)
}

// NewConn runs the base handshake over rw and, when both sides set the
// extension bit, sends our extended handshake. On failure rw is closed
// without any further bytes being written.
func NewConn(ctx context.Context, rw io.ReadWriteCloser, role Role, cfg ConnConfig) (*Conn, error) {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	c := &Conn{
		id:     uuid.New(),
		rw:     rw,
		r:      NewReader(rw, cfg.MaxMessageLen),
		w:      NewWriter(rw),
		cfg:    cfg,
		role:   role,
		remote: "pipe",
		ext:    NewExtensions(cfg.Extensions),
		ctx:    ctx,
		cancel: cancel,
	}

	if a, ok := rw.(addresser); ok && a.RemoteAddr() != nil {
		c.remote = a.RemoteAddr().String()
	}

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	if err := c.handshake(); err != nil {
		logger.Warnf("peer %s (%s): handshake failed: %v", c.remote, c.id, err)
		c.Close()

		return nil, err
	}

	logger.Debugf("peer %s (%s): handshake complete as %s, peer id %s", c.remote, c.id, role, c.result.PeerID)

	if c.result.Reserved.SupportsExtended() {
		if err := c.sendExtendedHandshake(); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Conn) handshake() error {
	hs := NewHandshaker(c.role, HandshakeConfig{
		Reserved:       c.cfg.Reserved,
		InfoHash:       c.cfg.InfoHash,
		PeerID:         c.cfg.PeerID,
		ExpectedPeerID: c.cfg.ExpectedPeerID,
	})

	if d, ok := c.rw.(deadliner); ok {
		deadline := time.Now().Add(c.cfg.HandshakeTimeout)
		_ = d.SetReadDeadline(deadline)
		_ = d.SetWriteDeadline(deadline)

		defer func() {
			_ = d.SetReadDeadline(time.Time{})
			_ = d.SetWriteDeadline(time.Time{})
		}()
	}

	for hs.State() != StateValidated {
		switch hs.State() {
		case StateBuildOutbound:
			out, err := hs.Outbound()
			if err != nil {
				return err
			}

			if _, err := c.rw.Write(out); err != nil {
				return err
			}
		case StateAwaitingPeer:
			f := c.r.Framer()

			n, err := hs.Receive(f.Pending())
			if err != nil {
				return err
			}

			if n > 0 {
				f.Consume(n)
				continue
			}

			if err := c.r.Fill(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %w", ErrHandshakeRejected, hs.Err())
		}
	}

	res, err := hs.Result()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.result = res
	c.state = ConnHandshakeComplete
	c.mu.Unlock()

	return nil
}

func (c *Conn) sendExtendedHandshake() error {
	c.mu.Lock()
	payload := c.ext.Handshake(ExtendedHandshake{
		Version:      c.cfg.ClientName,
		Reqq:         250,
		MetadataSize: c.cfg.MetadataSize,
	})
	c.state = ConnAwaitingExtendedHandshake
	c.mu.Unlock()

	return c.WriteMessage(Extended(ExtHandshakeID, payload))
}

// ID is a unique id for this connection, used in logs and records.
func (c *Conn) ID() uuid.UUID { return c.id }

// RemoteAddr is the peer's address, or "pipe" for non-network streams.
func (c *Conn) RemoteAddr() string { return c.remote }

// Role returns whether we opened the connection.
func (c *Conn) Role() Role { return c.role }

// PeerID returns the id the peer presented.
func (c *Conn) PeerID() Hash { return c.result.PeerID }

// InfoHash returns the torrent this connection serves.
func (c *Conn) InfoHash() Hash { return c.result.InfoHash }

// Reserved returns the extension bits both sides set.
func (c *Conn) Reserved() Reserved { return c.result.Reserved }

// Context is cancelled when the connection closes.
func (c *Conn) Context() context.Context { return c.ctx }

// State returns the connection's lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// PeerExtensions returns the peer's latest extended handshake and whether
// one has arrived.
func (c *Conn) PeerExtensions() (ExtendedHandshake, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ext.Peer(), c.ext.Negotiated()
}

// SupportsExtension reports whether the peer advertised name.
func (c *Conn) SupportsExtension(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.ext.Remote().ID(name)

	return ok
}

// ReadMsg returns the next message. Extended handshakes update the
// connection's extension tables before being returned. Any error closes
// the connection. Payloads are valid until the next ReadMsg.
func (c *Conn) ReadMsg() (Message, error) {
	if c.ctx.Err() != nil {
		return Message{}, ErrConnClosed
	}

	if d, ok := c.rw.(deadliner); ok {
		_ = d.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}

	msg, err := c.r.ReadMsg()
	if err == nil {
		err = c.handle(msg)
	}

	if err != nil {
		if c.ctx.Err() != nil {
			err = ErrConnClosed
		} else {
			logger.Debugf("peer %s (%s): read: %v", c.remote, c.id, err)
		}

		c.Close()

		return Message{}, err
	}

	return msg, nil
}

func (c *Conn) handle(msg Message) error {
	if msg.ID != MsgExtended {
		return nil
	}

	if !c.result.Reserved.SupportsExtended() {
		return ErrExtendedNotSupported
	}

	if msg.ExtendedID != ExtHandshakeID {
		c.mu.Lock()
		_, err := c.ext.Incoming(msg.ExtendedID)
		c.mu.Unlock()

		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hs, err := c.ext.HandleHandshake(msg.Payload)
	if err != nil {
		return err
	}

	c.state = ConnExtensionsNegotiated
	logger.Debugf("peer %s (%s): extended handshake from %q: %v", c.remote, c.id, hs.Version, c.ext.Remote().Names())

	return nil
}

// IncomingExtension names the extension an incoming extended message
// belongs to.
func (c *Conn) IncomingExtension(msg Message) (string, error) {
	if msg.ID != MsgExtended {
		return "", fmt.Errorf("%w: %s is not an extended message", ErrInvalidState, msg.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ext.Incoming(msg.ExtendedID)
}

// WriteMessage frames and writes m. It is safe for concurrent use.
func (c *Conn) WriteMessage(m Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.ctx.Err() != nil {
		return ErrConnClosed
	}

	if err := c.w.WriteMsg(m); err != nil {
		c.Close()
		return err
	}

	return nil
}

// SendExtended writes payload as extension name using the peer's id.
func (c *Conn) SendExtended(name string, payload []byte) error {
	c.mu.Lock()
	if !c.result.Reserved.SupportsExtended() {
		c.mu.Unlock()
		return ErrExtendedNotSupported
	}

	msg, err := c.ext.Outgoing(name, payload)
	c.mu.Unlock()

	if err != nil {
		return err
	}

	return c.WriteMessage(msg)
}

// Close tears the connection down. Buffered partial frames are dropped.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		c.state = ConnClosed
		c.mu.Unlock()

		c.closeErr = c.rw.Close()
	})

	if errors.Is(c.closeErr, net.ErrClosed) {
		return nil
	}

	return c.closeErr
}
