package krpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	bwerrors "github.com/NamanBalaji/bitwire/internal/errors"
	"github.com/NamanBalaji/bitwire/internal/logger"
	"github.com/NamanBalaji/bitwire/pkg/bencode"
)

const (
	// DefaultQueryTimeout bounds how long a query waits for its answer.
	DefaultQueryTimeout = 15 * time.Second
	maxPacketSize       = 2048
)

// Node answers pings and sends queries over a packet connection. It keeps
// no routing table.
type Node struct {
	id      NodeID
	pc      net.PacketConn
	ids     TransactionIDs
	pending *Pending
}

// Listen opens a UDP socket on addr.
func Listen(addr string, id NodeID) (*Node, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return NewNode(pc, id, DefaultQueryTimeout), nil
}

// NewNode wraps pc. Serve must be running for queries to complete.
func NewNode(pc net.PacketConn, id NodeID, timeout time.Duration) *Node {
	n := &Node{id: id, pc: pc}
	n.pending = NewPending(&n.ids, timeout)

	return n
}

// ID returns the local node id.
func (n *Node) ID() NodeID {
	return n.id
}

// Addr returns the bound address.
func (n *Node) Addr() net.Addr {
	return n.pc.LocalAddr()
}

// Close closes the socket, which stops Serve.
func (n *Node) Close() error {
	return n.pc.Close()
}

// Serve reads packets until ctx is done or the socket is closed.
func (n *Node) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { n.pc.Close() })
	defer stop()

	buf := make([]byte, maxPacketSize)

	for {
		sz, from, err := n.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		n.handle(buf[:sz], from)
	}
}

func (n *Node) handle(packet []byte, from net.Addr) {
	msg, err := Parse(packet)
	if err != nil {
		logger.Debugf("krpc: %v", bwerrors.NewProtocolError(err, bwerrors.ProtocolKRPC, from.String()))
		return
	}

	if msg.Y != TypeQuery {
		if !n.pending.Resolve(msg) {
			logger.Debugf("krpc: unsolicited %s from %s", msg.Y, from)
		}

		return
	}

	var reply *bencode.Mut

	switch msg.Q {
	case MethodPing:
		if _, err := msg.NodeID(); err != nil {
			reply = ErrorReply(msg.T, CodeProtocol, "invalid id")
			break
		}

		reply = PingResponse(msg.T, n.id)
	default:
		reply = ErrorReply(msg.T, CodeMethodUnknown, "Method Unknown")
	}

	if _, err := n.pc.WriteTo(reply.Encode(), from); err != nil {
		logger.Debugf("krpc: reply to %s: %v", from, bwerrors.Classify(err, from.String()))
	}
}

// Ping sends a ping to addr and returns the responder's id.
func (n *Node) Ping(ctx context.Context, addr net.Addr) (NodeID, error) {
	type result struct {
		id  NodeID
		err error
	}

	done := make(chan result, 1)

	tid := n.pending.Register(func(msg *Message, err error) {
		if err != nil {
			done <- result{err: err}
			return
		}

		id, err := msg.NodeID()
		done <- result{id: id, err: err}
	})

	if _, err := n.pc.WriteTo(Ping(tid, n.id).Encode(), addr); err != nil {
		return NodeID{}, bwerrors.Classify(err, addr.String())
	}

	select {
	case r := <-done:
		return r.id, r.err
	case <-ctx.Done():
		return NodeID{}, ctx.Err()
	}
}
