package metainfo

import (
	"fmt"
	"os"
	"strings"

	anametainfo "github.com/anacrolix/torrent/metainfo"

	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

// Magnet represents a parsed magnet link. A magnet link may carry zero
// trackers, in which case peers come from x.pe hints or elsewhere.
type Magnet struct {
	InfoHash    peer.Hash
	DisplayName string
	Trackers    []string
	// Peers holds the x.pe peer address hints.
	Peers []string
}

// ParseMagnet parses a magnet link with a hex or base32 btih info-hash.
func ParseMagnet(raw string) (*Magnet, error) {
	m, err := anametainfo.ParseMagnetUri(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetainfo, err)
	}

	var trackers []string

	for _, tr := range m.Trackers {
		if tr != "" {
			trackers = append(trackers, tr)
		}
	}

	return &Magnet{
		InfoHash:    peer.Hash(m.InfoHash),
		DisplayName: m.DisplayName,
		Trackers:    trackers,
		Peers:       m.Params["x.pe"],
	}, nil
}

// IsMagnet reports whether s looks like a magnet link.
func IsMagnet(s string) bool {
	return strings.HasPrefix(s, "magnet:")
}

// ResolveInfoHash accepts a magnet link, a 40 character hex info-hash or
// the path of a .torrent file.
func ResolveInfoHash(arg string, opts bencode.DecodeOptions) (peer.Hash, error) {
	if IsMagnet(arg) {
		m, err := ParseMagnet(arg)
		if err != nil {
			return peer.Hash{}, err
		}

		return m.InfoHash, nil
	}

	if len(arg) == 2*peer.HashLen {
		if h, err := peer.HashFromHex(arg); err == nil {
			return h, nil
		}
	}

	if _, err := os.Stat(arg); err != nil {
		return peer.Hash{}, fmt.Errorf("%q is not a magnet link, info-hash or torrent file: %w", arg, err)
	}

	mi, err := Load(arg, opts)
	if err != nil {
		return peer.Hash{}, err
	}

	return mi.InfoHash, nil
}
