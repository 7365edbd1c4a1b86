package cli_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/bitwire/internal/cli"
	"github.com/NamanBalaji/bitwire/internal/errors"
	"github.com/NamanBalaji/bitwire/internal/repository"
	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

func TestRenderValue(t *testing.T) {
	v, err := bencode.Decode([]byte("d1:ad1:bli1eee1:c0:e"))
	require.NoError(t, err)

	lines := strings.Split(cli.RenderValue(v), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "dict (2)")
	assert.True(t, strings.HasPrefix(lines[1], "  a:"))
	assert.Contains(t, lines[2], "list (1)")
	assert.True(t, strings.HasPrefix(lines[3], "      [0]"))
	assert.Contains(t, lines[4], `""`)
}

func TestRenderValue_LongBinary(t *testing.T) {
	raw := make([]byte, 64)
	raw[0] = 0xff

	v := bencode.NewBytes(raw)
	got := cli.RenderValue(v)

	assert.Contains(t, got, "<64 bytes> ff")
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestRenderFields(t *testing.T) {
	got := cli.RenderFields([]cli.Field{
		{Label: "a", Value: "one"},
		{Label: "longer", Value: "two"},
	})

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Index(lines[0], "one"), strings.Index(lines[1], "two"))
}

func TestRenderPeers(t *testing.T) {
	now := time.Now()

	records := []*repository.PeerRecord{
		{PeerInfo: peer.PeerInfo{
			ConnID:      uuid.New(),
			Addr:        "10.0.0.1:6881",
			Role:        peer.Initiator,
			Client:      "client 1",
			Extensions:  []string{"ut_metadata"},
			ConnectedAt: now,
		}},
		{PeerInfo: peer.PeerInfo{
			ConnID:        uuid.New(),
			Addr:          "10.0.0.2:6881",
			Role:          peer.Responder,
			ConnectedAt:   now,
			ClosedAt:      now,
			CloseReason:   "bad frame",
			CloseCategory: errors.CategoryProtocol,
		}},
	}

	got := cli.RenderPeers(records)

	for _, want := range []string{"ADDR", "10.0.0.1:6881", "initiator", "ut_metadata", "open", "responder", "bad frame"} {
		assert.Contains(t, got, want)
	}
}
