package peer

import (
	"bytes"
	"fmt"
)

const (
	// ProtocolID is the protocol name sent in every BitTorrent handshake.
	ProtocolID = "BitTorrent protocol"
	// ReservedLen is the number of extension bit bytes in the handshake.
	ReservedLen = 8
	// HandshakeLen is the size of a handshake carrying ProtocolID.
	HandshakeLen = 1 + len(ProtocolID) + ReservedLen + HashLen + HashLen
)

// Reserved holds the eight extension bit bytes of a handshake.
type Reserved [ReservedLen]byte

// SupportsExtended reports the BEP 10 extension protocol bit.
func (r Reserved) SupportsExtended() bool { return r[5]&0x10 != 0 }

// SupportsDHT reports the BEP 5 DHT bit.
func (r Reserved) SupportsDHT() bool { return r[7]&0x01 != 0 }

// SupportsFast reports the BEP 6 fast extension bit.
func (r Reserved) SupportsFast() bool { return r[7]&0x04 != 0 }

// SetExtended sets the BEP 10 bit.
func (r *Reserved) SetExtended() { r[5] |= 0x10 }

// SetDHT sets the DHT bit.
func (r *Reserved) SetDHT() { r[7] |= 0x01 }

// SetFast sets the fast extension bit.
func (r *Reserved) SetFast() { r[7] |= 0x04 }

// And returns the bits both sides set.
func (r Reserved) And(o Reserved) Reserved {
	var out Reserved
	for i := range r {
		out[i] = r[i] & o[i]
	}

	return out
}

// Handshake is the preamble each side sends exactly once before any
// message. See BEP 3.
type Handshake struct {
	Protocol string
	Reserved Reserved
	InfoHash Hash
	PeerID   Hash
}

func (h Handshake) protocol() string {
	if h.Protocol == "" {
		return ProtocolID
	}

	return h.Protocol
}

// Len returns the encoded size of h.
func (h Handshake) Len() int {
	return 1 + len(h.protocol()) + ReservedLen + 2*HashLen
}

// MarshalBinary encodes h. An empty Protocol encodes as ProtocolID.
func (h Handshake) MarshalBinary() ([]byte, error) {
	pstr := h.protocol()
	if len(pstr) > 255 {
		return nil, fmt.Errorf("protocol name too long: %d bytes", len(pstr))
	}

	b := make([]byte, 0, h.Len())
	b = append(b, byte(len(pstr)))
	b = append(b, pstr...)
	b = append(b, h.Reserved[:]...)
	b = append(b, h.InfoHash[:]...)
	b = append(b, h.PeerID[:]...)

	return b, nil
}

// ParseHandshake decodes a handshake from the front of buf. It returns the
// number of bytes consumed, or zero with a nil error when buf is still
// short of a full preamble. The protocol name is not checked here.
func ParseHandshake(buf []byte) (Handshake, int, error) {
	if len(buf) < 1 {
		return Handshake{}, 0, nil
	}

	pstrlen := int(buf[0])

	total := 1 + pstrlen + ReservedLen + 2*HashLen
	if len(buf) < total {
		return Handshake{}, 0, nil
	}

	var h Handshake

	off := 1
	h.Protocol = string(buf[off : off+pstrlen])
	off += pstrlen
	copy(h.Reserved[:], buf[off:off+ReservedLen])
	off += ReservedLen
	copy(h.InfoHash[:], buf[off:off+HashLen])
	off += HashLen
	copy(h.PeerID[:], buf[off:off+HashLen])

	return h, total, nil
}

// Role says which side opened the connection.
type Role uint8

const (
	// Initiator sends its handshake first.
	Initiator Role = iota
	// Responder waits for the peer's handshake before answering.
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}

	return "responder"
}

// HandshakeState is a step in the handshake exchange.
type HandshakeState uint8

const (
	StateBuildOutbound HandshakeState = iota
	StateAwaitingPeer
	StateValidated
	// StateRejected is terminal. Nothing more may be sent on the
	// connection.
	StateRejected
)

func (s HandshakeState) String() string {
	switch s {
	case StateBuildOutbound:
		return "build-outbound"
	case StateAwaitingPeer:
		return "awaiting-peer-handshake"
	case StateValidated:
		return "validated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("HandshakeState(%d)", uint8(s))
	}
}

// HandshakeConfig is the local side of a handshake.
type HandshakeConfig struct {
	// Protocol defaults to ProtocolID.
	Protocol string
	Reserved Reserved
	InfoHash Hash
	PeerID   Hash
	// ExpectedPeerID, when set, must match the id the peer presents.
	// Inbound connections leave it nil and accept any id.
	ExpectedPeerID *Hash
}

// HandshakeResult is what a validated exchange established.
type HandshakeResult struct {
	InfoHash Hash
	PeerID   Hash
	// Reserved is the AND of both sides' extension bits.
	Reserved       Reserved
	RemoteReserved Reserved
}

// Handshaker drives one side of the handshake exchange. It does no I/O:
// the caller sends the bytes returned by Outbound and feeds received bytes
// to Receive. A Handshaker is owned by a single goroutine.
type Handshaker struct {
	role   Role
	state  HandshakeState
	local  Handshake
	expect *Hash
	remote Handshake
	err    error
}

// NewHandshaker returns a handshaker in the first state for role.
func NewHandshaker(role Role, cfg HandshakeConfig) *Handshaker {
	h := &Handshaker{
		role: role,
		local: Handshake{
			Protocol: cfg.Protocol,
			Reserved: cfg.Reserved,
			InfoHash: cfg.InfoHash,
			PeerID:   cfg.PeerID,
		},
		expect: cfg.ExpectedPeerID,
	}

	h.local.Protocol = h.local.protocol()

	if role == Initiator {
		h.state = StateBuildOutbound
	} else {
		h.state = StateAwaitingPeer
	}

	return h
}

// Role returns the side this handshaker plays.
func (h *Handshaker) Role() Role { return h.role }

// State returns the current state.
func (h *Handshaker) State() HandshakeState { return h.state }

// Err returns the reason for rejection, or nil.
func (h *Handshaker) Err() error { return h.err }

// Outbound returns the local preamble. It is only valid in
// StateBuildOutbound; an initiator moves on to wait for the peer and a
// responder becomes validated.
func (h *Handshaker) Outbound() ([]byte, error) {
	if err := h.expectState(StateBuildOutbound); err != nil {
		return nil, err
	}

	b, err := h.local.MarshalBinary()
	if err != nil {
		return nil, h.reject(err)
	}

	if h.role == Initiator {
		h.state = StateAwaitingPeer
	} else {
		h.state = StateValidated
	}

	return b, nil
}

// Receive parses the peer's preamble from buf. It returns the number of
// bytes consumed, or zero with a nil error when more bytes are needed; in
// that case the same bytes plus any new ones must be passed again. Any
// error moves the handshaker to StateRejected.
func (h *Handshaker) Receive(buf []byte) (int, error) {
	if err := h.expectState(StateAwaitingPeer); err != nil {
		return 0, err
	}

	if err := h.checkProtocolPrefix(buf); err != nil {
		return 0, h.reject(err)
	}

	remote, n, err := ParseHandshake(buf)
	if err != nil {
		return 0, h.reject(err)
	}

	if n == 0 {
		return 0, nil
	}

	if remote.InfoHash != h.local.InfoHash {
		return 0, h.reject(fmt.Errorf("%w: want %s, got %s", ErrInfoHashMismatch, h.local.InfoHash, remote.InfoHash))
	}

	if h.expect != nil && remote.PeerID != *h.expect {
		return 0, h.reject(fmt.Errorf("%w: want %s, got %s", ErrPeerIDMismatch, *h.expect, remote.PeerID))
	}

	h.remote = remote

	if h.role == Initiator {
		h.state = StateValidated
	} else {
		h.state = StateBuildOutbound
	}

	return n, nil
}

// Result returns the negotiated outcome once validated.
func (h *Handshaker) Result() (HandshakeResult, error) {
	if err := h.expectState(StateValidated); err != nil {
		return HandshakeResult{}, err
	}

	return HandshakeResult{
		InfoHash:       h.remote.InfoHash,
		PeerID:         h.remote.PeerID,
		Reserved:       h.local.Reserved.And(h.remote.Reserved),
		RemoteReserved: h.remote.Reserved,
	}, nil
}

// checkProtocolPrefix rejects a wrong protocol name as soon as the
// differing byte has arrived.
func (h *Handshaker) checkProtocolPrefix(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	want := h.local.Protocol
	if int(buf[0]) != len(want) {
		return fmt.Errorf("%w: name length %d", ErrProtocolMismatch, buf[0])
	}

	got := buf[1:min(len(buf), 1+len(want))]
	if !bytes.Equal(got, []byte(want[:len(got)])) {
		return fmt.Errorf("%w: %q", ErrProtocolMismatch, got)
	}

	return nil
}

func (h *Handshaker) expectState(want HandshakeState) error {
	if h.state == StateRejected {
		return fmt.Errorf("%w: %w", ErrHandshakeRejected, h.err)
	}

	if h.state != want {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidState, h.role, h.state)
	}

	return nil
}

func (h *Handshaker) reject(err error) error {
	h.state = StateRejected
	h.err = err

	return err
}
