package peer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// HashLen is the width of info-hashes and peer ids.
const HashLen = 20

// Hash is a 20-byte identifier: the SHA-1 info-hash of a torrent or a
// peer id. The fixed width makes a wrongly sized hash unrepresentable once
// constructed.
type Hash [HashLen]byte

// HashFromBytes copies b into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLen {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashLen, len(b))
	}

	copy(h[:], b)

	return h, nil
}

// MustHash is HashFromBytes for values under the caller's control. It
// panics on a length mismatch and must not be fed network input.
func MustHash(b []byte) Hash {
	h, err := HashFromBytes(b)
	if err != nil {
		panic(err)
	}

	return h
}

// HashFromHex parses a 40 character hex string.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex hash: %w", err)
	}

	return HashFromBytes(b)
}

// NewPeerID returns a peer id made of prefix followed by random bytes.
// Prefixes longer than HashLen are truncated.
func NewPeerID(prefix string) (Hash, error) {
	var id Hash

	n := copy(id[:], prefix)
	if _, err := rand.Read(id[n:]); err != nil {
		return Hash{}, err
	}

	return id, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromHex(string(text))
	if err != nil {
		return err
	}

	*h = parsed

	return nil
}
