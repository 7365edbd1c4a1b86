package peer_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/bitwire/pkg/peer"
)

func frame(id byte, body ...byte) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(1+len(body)))
	b = append(b, id)

	return append(b, body...)
}

func TestMessageWireLayout(t *testing.T) {
	tests := []struct {
		name string
		msg  peer.Message
		want []byte
	}{
		{"keep-alive", peer.KeepAlive(), []byte{0, 0, 0, 0}},
		{"choke", peer.Choke(), frame(0)},
		{"unchoke", peer.Unchoke(), frame(1)},
		{"interested", peer.Interested(), frame(2)},
		{"not-interested", peer.NotInterested(), frame(3)},
		{"have", peer.Have(0x01020304), frame(4, 1, 2, 3, 4)},
		{"bitfield", peer.BitfieldMessage([]byte{0xf0, 0x01}), frame(5, 0xf0, 0x01)},
		{"request", peer.Request(1, 2, 16384), frame(6, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0x40, 0)},
		{"piece", peer.Piece(7, 8, []byte("blk")), frame(7, 0, 0, 0, 7, 0, 0, 0, 8, 'b', 'l', 'k')},
		{"cancel", peer.Cancel(1, 2, 3), frame(8, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3)},
		{"port", peer.Port(6881), frame(9, 0x1a, 0xe1)},
		{"extended", peer.Extended(3, []byte("de")), frame(20, 3, 'd', 'e')},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want)-4, tt.msg.Len())

			parsed, n, err := peer.ParseMessage(got, peer.DefaultMaxMessageLen)
			require.NoError(t, err)
			assert.Equal(t, len(got), n)
			assert.Equal(t, tt.msg.ID, parsed.ID)
			assert.Equal(t, tt.msg.Index, parsed.Index)
			assert.Equal(t, tt.msg.Begin, parsed.Begin)
			assert.Equal(t, tt.msg.Length, parsed.Length)
			assert.Equal(t, tt.msg.Port, parsed.Port)
			assert.Equal(t, tt.msg.ExtendedID, parsed.ExtendedID)
			assert.Equal(t, len(tt.msg.Payload), len(parsed.Payload))
			if len(tt.msg.Payload) > 0 {
				assert.Equal(t, tt.msg.Payload, parsed.Payload)
			}
		})
	}
}

func TestMarshalUnknownID(t *testing.T) {
	_, err := peer.Message{ID: 42}.MarshalBinary()
	assert.ErrorIs(t, err, peer.ErrUnknownMessageID)
}

func TestParseHaveOneByteAtATime(t *testing.T) {
	wire, err := peer.Have(9).MarshalBinary()
	require.NoError(t, err)
	require.Len(t, wire, 9)

	input := append(append([]byte{}, wire...), frame(1)...)
	require.Len(t, input, 14)

	for i := 0; i < len(wire); i++ {
		msg, n, err := peer.ParseMessage(input[:i], peer.DefaultMaxMessageLen)
		require.NoError(t, err, "prefix %d", i)
		assert.Equal(t, 0, n, "prefix %d", i)
		assert.Equal(t, peer.Message{}, msg)
	}

	msg, n, err := peer.ParseMessage(input, peer.DefaultMaxMessageLen)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, peer.MsgHave, msg.ID)
	assert.Equal(t, uint32(9), msg.Index)

	next, n, err := peer.ParseMessage(input[len(wire):], peer.DefaultMaxMessageLen)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, peer.MsgUnchoke, next.ID)
}

func TestFramerThirteenByteHave(t *testing.T) {
	// A have frame followed by a keep-alive, 13 bytes in total.
	stream := append(frame(4, 0, 0, 0, 5), 0, 0, 0, 0)
	require.Len(t, stream, 13)

	f := peer.NewFramer(0)

	var got []peer.Message

	for i := range stream {
		_, _ = f.Write(stream[i : i+1])

		for {
			msg, ok, err := f.Next()
			require.NoError(t, err)

			if !ok {
				break
			}

			got = append(got, msg)
		}

		switch {
		case i < 8:
			assert.Empty(t, got, "after %d bytes", i+1)
		case i < 12:
			assert.Len(t, got, 1, "after %d bytes", i+1)
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, peer.MsgHave, got[0].ID)
	assert.Equal(t, uint32(5), got[0].Index)
	assert.Equal(t, peer.MsgKeepAlive, got[1].ID)
	assert.Equal(t, 0, f.Buffered())
}

func TestParseMessageErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		max   uint32
		want  error
	}{
		{"unknown id", frame(10), peer.DefaultMaxMessageLen, peer.ErrUnknownMessageID},
		{"keep-alive id on wire", frame(0xff), peer.DefaultMaxMessageLen, peer.ErrUnknownMessageID},
		{"short have", frame(4, 1, 2), peer.DefaultMaxMessageLen, peer.ErrMalformedMessage},
		{"long choke", frame(0, 1), peer.DefaultMaxMessageLen, peer.ErrMalformedMessage},
		{"short request", frame(6, 0, 0, 0, 1), peer.DefaultMaxMessageLen, peer.ErrMalformedMessage},
		{"short piece", frame(7, 0, 0, 0, 1), peer.DefaultMaxMessageLen, peer.ErrMalformedMessage},
		{"empty extended", frame(20), peer.DefaultMaxMessageLen, peer.ErrMalformedMessage},
		{"short port", frame(9, 1), peer.DefaultMaxMessageLen, peer.ErrMalformedMessage},
		{"too large", []byte{0, 0, 1, 0}, 255, peer.ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := peer.ParseMessage(tt.input, tt.max)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, n)
		})
	}
}

func TestParseMessageRejectsBeforeBodyArrives(t *testing.T) {
	// Prefix claims a huge request; only the prefix and id have arrived.
	_, _, err := peer.ParseMessage([]byte{0, 0, 0x10, 0, 6}, peer.DefaultMaxMessageLen)
	assert.ErrorIs(t, err, peer.ErrMalformedMessage)

	_, _, err = peer.ParseMessage([]byte{0xff, 0xff, 0xff, 0xff}, peer.DefaultMaxMessageLen)
	assert.ErrorIs(t, err, peer.ErrFrameTooLarge)
}

func TestParsePayloadAliasesBuffer(t *testing.T) {
	wire := frame(7, 0, 0, 0, 1, 0, 0, 0, 0, 'x', 'y')

	msg, _, err := peer.ParseMessage(wire, peer.DefaultMaxMessageLen)
	require.NoError(t, err)
	assert.Same(t, &wire[13], &msg.Payload[0])
}

func TestReaderWriterStream(t *testing.T) {
	var buf bytes.Buffer

	w := peer.NewWriter(&buf)
	msgs := []peer.Message{
		peer.Interested(),
		peer.KeepAlive(),
		peer.Piece(1, 0, bytes.Repeat([]byte{7}, 16384)),
		peer.Extended(1, []byte("d1:ai1ee")),
	}

	for _, m := range msgs {
		require.NoError(t, w.WriteMsg(m))
	}

	r := peer.NewReader(&buf, 0)
	for _, want := range msgs {
		got, err := r.ReadMsg()
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, len(want.Payload), len(got.Payload))
	}

	_, err := r.ReadMsg()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderTruncatedFrame(t *testing.T) {
	wire := frame(4, 0, 0)

	r := peer.NewReader(bytes.NewReader(wire), 0)
	_, err := r.ReadMsg()
	assert.ErrorIs(t, err, peer.ErrMalformedMessage)

	wire, err = peer.Have(3).MarshalBinary()
	require.NoError(t, err)

	r = peer.NewReader(bytes.NewReader(wire[:7]), 0)
	_, err = r.ReadMsg()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

type trickleReader struct {
	data []byte
}

func (r *trickleReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}

	p[0] = r.data[0]
	r.data = r.data[1:]

	return 1, nil
}

func TestReaderOneByteReads(t *testing.T) {
	var wire []byte
	wire = peer.Request(4, 5, 6).AppendBinary(wire)
	wire = peer.Port(80).AppendBinary(wire)

	r := peer.NewReader(&trickleReader{data: wire}, 0)

	m, err := r.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, peer.Request(4, 5, 6), m)

	m, err = r.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, uint16(80), m.Port)
}

func TestMessageIDString(t *testing.T) {
	assert.Equal(t, "have", peer.MsgHave.String())
	assert.Equal(t, "extended", peer.MsgExtended.String())
	assert.Equal(t, "unknown(11)", peer.MessageID(11).String())
	assert.Equal(t, "request(1, 2, 3)", peer.Request(1, 2, 3).String())
}
