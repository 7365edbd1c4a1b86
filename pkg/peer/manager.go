package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	bwerrors "github.com/NamanBalaji/bitwire/internal/errors"
	"github.com/NamanBalaji/bitwire/internal/logger"
)

// PeerInfo describes a connection for persistence.
type PeerInfo struct {
	ConnID      uuid.UUID
	Addr        string
	PeerID      Hash
	InfoHash    Hash
	Role        Role
	Client      string
	Extensions  []string
	ConnectedAt time.Time
	ClosedAt    time.Time
	CloseReason string
	// CloseCategory is set when the connection ended with an error.
	CloseCategory bwerrors.ErrorCategory
	MessagesRecv  int
}

// Info describes c as it stands now. Client and Extensions are empty
// until the peer's extended handshake has been read.
func (c *Conn) Info() PeerInfo {
	info := PeerInfo{
		ConnID:      c.ID(),
		Addr:        c.RemoteAddr(),
		PeerID:      c.PeerID(),
		InfoHash:    c.InfoHash(),
		Role:        c.Role(),
		ConnectedAt: time.Now(),
	}
	info.fillExtensions(c)

	return info
}

func (p *PeerInfo) fillExtensions(c *Conn) {
	if hs, ok := c.PeerExtensions(); ok {
		p.Client = hs.Version
		p.Extensions = NewExtensionTable(hs.M).Names()
	}
}

// PeerStore receives connection records. SavePeer is called once when a
// connection is added and once when it closes, with the same ConnID.
type PeerStore interface {
	SavePeer(info PeerInfo) error
}

// Handler is called for each message read from a managed connection. A
// returned error closes that connection.
type Handler func(c *Conn, msg Message) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxPeers    int
	DialTimeout time.Duration
	// ListenAddr, when set, accepts inbound connections.
	ListenAddr string
	Conn       ConnConfig
	Store      PeerStore
	Handler    Handler
}

type entry struct {
	conn    *Conn
	addedAt time.Time
	info    PeerInfo
	recv    int
}

// Manager owns a set of peer connections for one torrent. Additions and
// removals are serialized through a single event loop.
type Manager struct {
	cfg      ManagerConfig
	ctx      context.Context
	cancel   context.CancelFunc
	g        *errgroup.Group
	listener net.Listener

	mu    sync.RWMutex
	conns map[string]*entry

	dialCh   chan string
	addCh    chan *Conn
	removeCh chan string
}

// NewManager starts a manager. It fails only if ListenAddr cannot be
// bound.
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = 50
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	m := &Manager{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		g:        g,
		conns:    make(map[string]*entry),
		dialCh:   make(chan string, 128),
		addCh:    make(chan *Conn, 32),
		removeCh: make(chan string, 32),
	}

	if cfg.ListenAddr != "" {
		l, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
		}

		m.listener = l
		g.Go(m.acceptLoop)
		logger.Infof("manager listening on %s for %s", l.Addr(), cfg.Conn.InfoHash)
	}

	g.Go(m.eventLoop)

	return m, nil
}

func (m *Manager) acceptLoop() error {
	for {
		netConn, err := m.listener.Accept()
		if err != nil {
			if m.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		m.g.Go(func() error {
			c, err := NewConn(m.ctx, netConn, Responder, m.cfg.Conn)
			if err != nil {
				return nil
			}

			m.enqueue(c)

			return nil
		})
	}
}

// AddOutbound queues a dial to addr.
func (m *Manager) AddOutbound(addr string) {
	select {
	case m.dialCh <- addr:
	case <-m.ctx.Done():
	}
}

// RemovePeer queues addr for disconnection.
func (m *Manager) RemovePeer(addr string) {
	select {
	case m.removeCh <- addr:
	case <-m.ctx.Done():
	}
}

func (m *Manager) enqueue(c *Conn) {
	select {
	case m.addCh <- c:
	case <-m.ctx.Done():
		c.Close()
	}
}

func (m *Manager) eventLoop() error {
	for {
		select {
		case addr := <-m.dialCh:
			m.dial(addr)
		case c := <-m.addCh:
			m.addConn(c)
		case addr := <-m.removeCh:
			m.dropConn(addr, "removed")
		case <-m.ctx.Done():
			m.closeAll()
			return nil
		}
	}
}

func (m *Manager) dial(addr string) {
	m.mu.RLock()
	_, exists := m.conns[addr]
	m.mu.RUnlock()

	if exists {
		return
	}

	m.g.Go(func() error {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
		defer cancel()

		dialer := &net.Dialer{}

		netConn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			logger.Debugf("dial %s: %v", addr, bwerrors.Classify(err, addr))
			return nil
		}

		c, err := NewConn(m.ctx, netConn, Initiator, m.cfg.Conn)
		if err != nil {
			return nil
		}

		m.enqueue(c)

		return nil
	})
}

// addConn registers c, evicting the oldest connection when full.
func (m *Manager) addConn(c *Conn) {
	addr := c.RemoteAddr()

	m.mu.Lock()
	if _, exists := m.conns[addr]; exists {
		m.mu.Unlock()
		c.Close()

		return
	}

	if len(m.conns) >= m.cfg.MaxPeers {
		m.evictOldestLocked()
	}

	e := &entry{
		conn:    c,
		addedAt: time.Now(),
		info:    c.Info(),
	}
	m.conns[addr] = e
	m.mu.Unlock()

	m.save(e.info)
	m.g.Go(func() error {
		m.readLoop(e)
		return nil
	})
}

func (m *Manager) readLoop(e *entry) {
	var cause error

	for {
		msg, err := e.conn.ReadMsg()
		if err != nil {
			cause = err
			break
		}

		m.mu.Lock()
		e.recv++
		m.mu.Unlock()

		if m.cfg.Handler == nil {
			continue
		}

		if err := m.cfg.Handler(e.conn, msg); err != nil {
			cause = err
			break
		}
	}

	m.removeWithError(e.conn.RemoteAddr(), e.conn.ID(), cause)
}

func (m *Manager) removeWithError(addr string, connID uuid.UUID, cause error) {
	perr := ClassifyError(cause, addr)
	if perr.Category == bwerrors.CategoryProtocol {
		logger.Warnf("dropping %s: %v", addr, perr)
	}

	m.mu.Lock()
	e, ok := m.conns[addr]
	if !ok || e.conn.ID() != connID {
		m.mu.Unlock()
		return
	}

	delete(m.conns, addr)
	info := m.closedInfoLocked(e, cause.Error())
	info.CloseCategory = perr.Category
	m.mu.Unlock()

	e.conn.Close()
	m.save(info)
}

func (m *Manager) evictOldestLocked() {
	var (
		oldest string
		at     time.Time
	)

	for addr, e := range m.conns {
		if oldest == "" || e.addedAt.Before(at) {
			oldest = addr
			at = e.addedAt
		}
	}

	if e, ok := m.conns[oldest]; ok {
		delete(m.conns, oldest)
		info := m.closedInfoLocked(e, "evicted")
		e.conn.Close()

		m.g.Go(func() error {
			m.save(info)
			return nil
		})
	}
}

func (m *Manager) dropConn(addr, reason string) {
	m.mu.Lock()
	e, ok := m.conns[addr]
	if !ok {
		m.mu.Unlock()
		return
	}

	delete(m.conns, addr)
	info := m.closedInfoLocked(e, reason)
	m.mu.Unlock()

	e.conn.Close()
	m.save(info)
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	closed := make([]PeerInfo, 0, len(m.conns))

	for addr, e := range m.conns {
		closed = append(closed, m.closedInfoLocked(e, "shutdown"))
		e.conn.Close()
		delete(m.conns, addr)
	}
	m.mu.Unlock()

	for _, info := range closed {
		m.save(info)
	}
}

func (m *Manager) closedInfoLocked(e *entry, reason string) PeerInfo {
	info := e.info
	info.ClosedAt = time.Now()
	info.CloseReason = reason
	info.MessagesRecv = e.recv
	info.fillExtensions(e.conn)

	return info
}

func (m *Manager) save(info PeerInfo) {
	if m.cfg.Store == nil {
		return
	}

	if err := m.cfg.Store.SavePeer(info); err != nil {
		logger.Errorf("failed to save peer %s: %v", info.Addr, err)
	}
}

// ForEach calls f for each connection under a read lock; f must not
// block.
func (m *Manager) ForEach(f func(addr string, c *Conn)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for addr, e := range m.conns {
		f(addr, e.conn)
	}
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.conns)
}

// ListenAddr returns the bound listener address, or nil.
func (m *Manager) ListenAddr() net.Addr {
	if m.listener == nil {
		return nil
	}

	return m.listener.Addr()
}

// Stop closes every connection and waits for all goroutines.
func (m *Manager) Stop() error {
	if m.listener != nil {
		m.listener.Close()
	}

	m.cancel()

	return m.g.Wait()
}
