package peer_test

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NamanBalaji/bitwire/internal/errors"
	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

func TestClassifyError(t *testing.T) {
	_, decodeErr := bencode.Decode([]byte("i01e"))

	tests := []struct {
		name     string
		err      error
		category errors.ErrorCategory
	}{
		{"frame too large", fmt.Errorf("read: %w", peer.ErrFrameTooLarge), errors.CategoryProtocol},
		{"handshake", peer.ErrInfoHashMismatch, errors.CategoryProtocol},
		{"extension", peer.ErrUnknownExtension, errors.CategoryProtocol},
		{"bencode", decodeErr, errors.CategoryDecode},
		{"eof", io.ErrUnexpectedEOF, errors.CategoryNetwork},
		{"context", context.Canceled, errors.CategoryContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := peer.ClassifyError(tt.err, "1.2.3.4:6881")
			assert.Equal(t, tt.category, pe.Category)
			assert.ErrorIs(t, pe, tt.err)
			assert.Equal(t, "1.2.3.4:6881", pe.Addr)
		})
	}

	assert.Nil(t, peer.ClassifyError(nil, "x"))
	assert.True(t, errors.IsProtocolError(peer.ClassifyError(peer.ErrMalformedMessage, "x"), errors.ProtocolPeerWire))
}
