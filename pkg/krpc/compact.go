package krpc

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

const (
	// CompactNodeLen is a node id followed by an IPv4 address and port.
	CompactNodeLen = 26
	compactPeerV4  = 6
	compactPeerV6  = 18
)

// NodeInfo is a node id with its UDP address.
type NodeInfo struct {
	ID   NodeID
	Addr netip.AddrPort
}

// Peer is a peer address returned by get_peers.
type Peer struct {
	netip.AddrPort
}

// ParseCompactNodes splits the "nodes" string of a response.
func ParseCompactNodes(b []byte) ([]NodeInfo, error) {
	if len(b)%CompactNodeLen != 0 {
		return nil, fmt.Errorf("%w: nodes length %d is not a multiple of %d", ErrInvalidMessage, len(b), CompactNodeLen)
	}

	nodes := make([]NodeInfo, 0, len(b)/CompactNodeLen)

	for off := 0; off < len(b); off += CompactNodeLen {
		var n NodeInfo

		copy(n.ID[:], b[off:off+20])
		addr := netip.AddrFrom4([4]byte(b[off+20 : off+24]))
		n.Addr = netip.AddrPortFrom(addr, binary.BigEndian.Uint16(b[off+24:off+26]))
		nodes = append(nodes, n)
	}

	return nodes, nil
}

// AppendCompactNodes appends the compact form of nodes to dst. Nodes
// without an IPv4 address are skipped.
func AppendCompactNodes(dst []byte, nodes []NodeInfo) []byte {
	for _, n := range nodes {
		addr := n.Addr.Addr().Unmap()
		if !addr.Is4() {
			continue
		}

		ip := addr.As4()
		dst = append(dst, n.ID[:]...)
		dst = append(dst, ip[:]...)
		dst = binary.BigEndian.AppendUint16(dst, n.Addr.Port())
	}

	return dst
}

// ParseCompactPeer reads a 6 byte IPv4 or 18 byte IPv6 peer address.
func ParseCompactPeer(b []byte) (Peer, error) {
	var addr netip.Addr

	switch len(b) {
	case compactPeerV4:
		addr = netip.AddrFrom4([4]byte(b[:4]))
	case compactPeerV6:
		addr = netip.AddrFrom16([16]byte(b[:16]))
	default:
		return Peer{}, fmt.Errorf("%w: compact peer of %d bytes", ErrInvalidMessage, len(b))
	}

	port := binary.BigEndian.Uint16(b[len(b)-2:])

	return Peer{netip.AddrPortFrom(addr, port)}, nil
}

// Compact returns the 6 or 18 byte form of p.
func (p Peer) Compact() []byte {
	addr := p.Addr().Unmap()

	var out []byte
	if addr.Is4() {
		ip := addr.As4()
		out = append(out, ip[:]...)
	} else {
		ip := addr.As16()
		out = append(out, ip[:]...)
	}

	return binary.BigEndian.AppendUint16(out, p.Port())
}
