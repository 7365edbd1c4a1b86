package peer_test

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/bitwire/pkg/peer"
)

func TestMetadataMessageEncoding(t *testing.T) {
	req := peer.MetadataMessage{Type: peer.MetadataRequest, Piece: 2}
	assert.Equal(t, "d8:msg_typei0e5:piecei2ee", string(req.Encode()))

	data := peer.MetadataMessage{Type: peer.MetadataData, Piece: 0, TotalSize: 5, Data: []byte("hello")}
	wire := data.Encode()
	assert.Equal(t, "d8:msg_typei1e5:piecei0e10:total_sizei5eehello", string(wire))

	parsed, err := peer.ParseMetadataMessage(wire)
	require.NoError(t, err)
	assert.Equal(t, peer.MetadataData, parsed.Type)
	assert.Equal(t, int64(5), parsed.TotalSize)
	assert.Equal(t, "hello", string(parsed.Data))

	parsed, err = peer.ParseMetadataMessage(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, peer.MetadataRequest, parsed.Type)
	assert.Equal(t, 2, parsed.Piece)
	assert.Nil(t, parsed.Data)
}

func TestParseMetadataMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not a dict", "i1e"},
		{"missing piece", "d8:msg_typei0ee"},
		{"unknown type", "d8:msg_typei7e5:piecei0ee"},
		{"trailing after request", "d8:msg_typei0e5:piecei0eejunk"},
		{"data without size", "d8:msg_typei1e5:piecei0eeabc"},
		{"negative piece", "d8:msg_typei0e5:piecei-1ee"},
		{"nested too deep", "d8:msg_typei0e5:piecei0e1:xlleee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := peer.ParseMetadataMessage([]byte(tt.payload))
			assert.ErrorIs(t, err, peer.ErrMalformedMessage)
		})
	}
}

func TestMetadataBuffer(t *testing.T) {
	info := bytes.Repeat([]byte("x"), peer.MetadataPieceSize+100)
	hash := peer.Hash(sha1.Sum(info))

	buf, err := peer.NewMetadataBuffer(int64(len(info)))
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Pieces())
	assert.Equal(t, []int{0, 1}, buf.Missing())

	assert.ErrorIs(t, buf.Put(1, info[:50]), peer.ErrMalformedMessage)
	assert.ErrorIs(t, buf.Put(2, nil), peer.ErrMalformedMessage)

	require.NoError(t, buf.Put(1, info[peer.MetadataPieceSize:]))
	assert.False(t, buf.Complete())

	_, err = buf.Verify(hash)
	assert.Error(t, err)

	require.NoError(t, buf.Put(0, info[:peer.MetadataPieceSize]))
	assert.True(t, buf.Complete())

	got, err := buf.Verify(hash)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	_, err = buf.Verify(testHash(1))
	assert.ErrorIs(t, err, peer.ErrInfoHashMismatch)

	_, err = peer.NewMetadataBuffer(0)
	assert.Error(t, err)
}
