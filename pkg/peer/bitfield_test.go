package peer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/bitwire/pkg/peer"
)

func TestNewBitfield(t *testing.T) {
	tests := []struct {
		name        string
		numPieces   int
		expectedLen int
	}{
		{"Zero pieces", 0, 0},
		{"1 piece", 1, 1},
		{"8 pieces", 8, 1},
		{"9 pieces", 9, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bf := peer.NewBitfield(tt.numPieces)
			if len(bf.Bytes()) != tt.expectedLen {
				t.Errorf("expected byte slice length %d, got %d", tt.expectedLen, len(bf.Bytes()))
			}
		})
	}
}

func TestNewBitfieldNegativeCount(t *testing.T) {
	bf := peer.NewBitfield(-3)

	assert.Equal(t, 0, bf.Len())
	assert.Empty(t, bf.Bytes())
	assert.True(t, bf.Complete())
	require.Error(t, bf.Set(0))

	bf, err := peer.BitfieldFromBytes(nil, -3)
	require.NoError(t, err)
	assert.Equal(t, 0, bf.Len())
}

func TestBitfieldSetHas(t *testing.T) {
	bf := peer.NewBitfield(17)

	require.NoError(t, bf.Set(0))
	require.NoError(t, bf.Set(8))
	require.NoError(t, bf.Set(16))
	assert.Error(t, bf.Set(-1))
	assert.Error(t, bf.Set(17))

	assert.True(t, bf.Has(0))
	assert.False(t, bf.Has(1))
	assert.False(t, bf.Has(17))
	assert.Equal(t, []byte{0x80, 0x80, 0x80}, bf.Bytes())
	assert.Equal(t, 3, bf.Count())
	assert.False(t, bf.Complete())

	msg := bf.Message()
	assert.Equal(t, peer.MsgBitfield, msg.ID)
	assert.Equal(t, bf.Bytes(), msg.Payload)
}

func TestBitfieldFromBytes(t *testing.T) {
	bf, err := peer.BitfieldFromBytes([]byte{0xff, 0xc0}, 10)
	require.NoError(t, err)
	assert.True(t, bf.Complete())

	_, err = peer.BitfieldFromBytes([]byte{0xff}, 10)
	assert.ErrorIs(t, err, peer.ErrMalformedMessage)

	_, err = peer.BitfieldFromBytes([]byte{0xff, 0xe0}, 10)
	assert.ErrorIs(t, err, peer.ErrMalformedMessage, "spare bit set")
}

func TestBitfieldConcurrentSet(t *testing.T) {
	bf := peer.NewBitfield(256)

	var wg sync.WaitGroup
	for i := range 256 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_ = bf.Set(i)
		}()
	}

	wg.Wait()
	assert.True(t, bf.Complete())
}

func TestAvailabilityObserve(t *testing.T) {
	a := peer.NewAvailability(10)
	c1, _ := pipePeer(t, baseConfig(testHash(1), testHash(2)), peer.Reserved{})
	c2, _ := pipePeer(t, baseConfig(testHash(1), testHash(2)), peer.Reserved{})

	require.NoError(t, a.Observe(c1, peer.BitfieldMessage([]byte{0x80, 0x40})))
	require.NoError(t, a.Observe(c2, peer.Have(0)))
	require.NoError(t, a.Observe(c2, peer.Have(9)))
	require.NoError(t, a.Observe(c2, peer.Interested()))

	assert.Equal(t, 2, a.Peers())
	assert.Equal(t, 2, a.Count(0))
	assert.Equal(t, 2, a.Count(9))
	assert.Equal(t, 0, a.Count(5))

	c1.Close()

	require.Eventually(t, func() bool { return a.Peers() == 1 }, testTimeout, 10*time.Millisecond)
	assert.Equal(t, 1, a.Count(0))
}

func TestAvailabilityRejects(t *testing.T) {
	tests := []struct {
		name string
		msgs []peer.Message
	}{
		{"short bitfield", []peer.Message{peer.BitfieldMessage([]byte{0xff})}},
		{"long bitfield", []peer.Message{peer.BitfieldMessage([]byte{0, 0, 0})}},
		{"spare bits", []peer.Message{peer.BitfieldMessage([]byte{0, 0x20})}},
		{"have past end", []peer.Message{peer.Have(10)}},
		{"have max index", []peer.Message{peer.Have(^uint32(0))}},
		{"second bitfield", []peer.Message{peer.BitfieldMessage([]byte{0, 0}), peer.BitfieldMessage([]byte{0, 0})}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := peer.NewAvailability(10)
			c, _ := pipePeer(t, baseConfig(testHash(1), testHash(2)), peer.Reserved{})

			last := len(tc.msgs) - 1
			for _, msg := range tc.msgs[:last] {
				require.NoError(t, a.Observe(c, msg))
			}

			assert.ErrorIs(t, a.Observe(c, tc.msgs[last]), peer.ErrMalformedMessage)
		})
	}
}
