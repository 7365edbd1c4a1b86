package peer

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"github.com/google/uuid"
)

// Bitfield records which pieces a peer has. Bit 0 of byte 0 (the high
// bit) is piece 0.
type Bitfield struct {
	mu   sync.RWMutex
	bits []byte
	n    int
}

// NewBitfield returns an empty bitfield for numPieces pieces. A negative
// count is treated as zero.
func NewBitfield(numPieces int) *Bitfield {
	numPieces = max(numPieces, 0)

	return &Bitfield{
		bits: make([]byte, (numPieces+7)/8),
		n:    numPieces,
	}
}

// BitfieldFromBytes copies the payload of a bitfield message. The length
// must match numPieces and the spare bits in the last byte must be clear.
func BitfieldFromBytes(data []byte, numPieces int) (*Bitfield, error) {
	numPieces = max(numPieces, 0)
	want := (numPieces + 7) / 8
	if len(data) != want {
		return nil, fmt.Errorf("%w: bitfield is %d bytes, want %d", ErrMalformedMessage, len(data), want)
	}

	if spare := want*8 - numPieces; spare > 0 && data[want-1]&(1<<spare-1) != 0 {
		return nil, fmt.Errorf("%w: bitfield spare bits set", ErrMalformedMessage)
	}

	bf := NewBitfield(numPieces)
	copy(bf.bits, data)

	return bf, nil
}

// Set marks a piece as present.
func (bf *Bitfield) Set(index int) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if index < 0 || index >= bf.n {
		return fmt.Errorf("piece index %d out of range [0, %d)", index, bf.n)
	}

	bf.bits[index/8] |= 1 << (7 - uint(index%8))

	return nil
}

// Has reports whether a piece is present. Out of range indexes are absent.
func (bf *Bitfield) Has(index int) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	return bf.has(index)
}

func (bf *Bitfield) has(index int) bool {
	if index < 0 || index >= bf.n {
		return false
	}

	return bf.bits[index/8]&(1<<(7-uint(index%8))) != 0
}

// Bytes returns a copy of the wire form.
func (bf *Bitfield) Bytes() []byte {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	out := make([]byte, len(bf.bits))
	copy(out, bf.bits)

	return out
}

// Len returns the number of pieces covered.
func (bf *Bitfield) Len() int { return bf.n }

// Count returns the number of pieces present.
func (bf *Bitfield) Count() int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	count := 0
	for _, b := range bf.bits {
		count += bits.OnesCount8(b)
	}

	return count
}

// Complete reports whether every piece is present.
func (bf *Bitfield) Complete() bool {
	return bf.Count() == bf.n
}

// Message returns the bitfield message advertising bf.
func (bf *Bitfield) Message() Message {
	return BitfieldMessage(bf.Bytes())
}

// Availability tracks the pieces advertised by each open connection.
// Entries are dropped when their connection closes.
type Availability struct {
	numPieces int

	mu    sync.Mutex
	peers map[uuid.UUID]*Bitfield
}

// NewAvailability returns a tracker for a torrent of numPieces pieces.
func NewAvailability(numPieces int) *Availability {
	return &Availability{
		numPieces: max(numPieces, 0),
		peers:     make(map[uuid.UUID]*Bitfield),
	}
}

// Observe records a bitfield or have message received on c. Other
// messages are ignored. A bitfield of the wrong size, a second bitfield or
// a have index past the last piece returns an error wrapping
// ErrMalformedMessage.
func (a *Availability) Observe(c *Conn, msg Message) error {
	switch msg.ID {
	case MsgBitfield:
		bf, err := BitfieldFromBytes(msg.Payload, a.numPieces)
		if err != nil {
			return err
		}

		a.mu.Lock()
		defer a.mu.Unlock()

		if _, ok := a.peers[c.ID()]; ok {
			return fmt.Errorf("%w: bitfield sent twice", ErrMalformedMessage)
		}

		a.track(c, bf)

		return nil
	case MsgHave:
		if int64(msg.Index) >= int64(a.numPieces) {
			return fmt.Errorf("%w: have index %d out of range [0, %d)", ErrMalformedMessage, msg.Index, a.numPieces)
		}

		a.mu.Lock()
		defer a.mu.Unlock()

		bf, ok := a.peers[c.ID()]
		if !ok {
			bf = NewBitfield(a.numPieces)
			a.track(c, bf)
		}

		return bf.Set(int(msg.Index))
	default:
		return nil
	}
}

// track stores bf for c and forgets it once c closes. Callers hold a.mu.
func (a *Availability) track(c *Conn, bf *Bitfield) {
	id := c.ID()
	a.peers[id] = bf

	context.AfterFunc(c.Context(), func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		delete(a.peers, id)
	})
}

// Count returns how many tracked peers have piece index.
func (a *Availability) Count(index int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0

	for _, bf := range a.peers {
		if bf.Has(index) {
			n++
		}
	}

	return n
}

// Peers returns the number of connections that have advertised pieces.
func (a *Availability) Peers() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.peers)
}
