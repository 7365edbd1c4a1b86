package peer

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"

	"github.com/NamanBalaji/bitwire/pkg/bencode"
)

// MetadataPieceSize is the BEP 9 block size for info dictionary transfer.
const MetadataPieceSize = 16 << 10

// MaxMetadataSize caps the info dictionary size a peer may announce.
const MaxMetadataSize = 8 << 20

// MetadataMsgType is the msg_type of a ut_metadata message.
type MetadataMsgType int64

const (
	MetadataRequest MetadataMsgType = iota
	MetadataData
	MetadataReject
)

func (t MetadataMsgType) String() string {
	switch t {
	case MetadataRequest:
		return "request"
	case MetadataData:
		return "data"
	case MetadataReject:
		return "reject"
	default:
		return fmt.Sprintf("MetadataMsgType(%d)", int64(t))
	}
}

// MetadataMessage is one ut_metadata message. Data follows the bencoded
// header on the wire and is only present for MetadataData; it aliases the
// parsed payload.
type MetadataMessage struct {
	Type      MetadataMsgType
	Piece     int
	TotalSize int64
	Data      []byte
}

// ParseMetadataMessage decodes an extended payload for ut_metadata. The
// header is decoded as a prefix since raw piece data follows it.
func ParseMetadataMessage(payload []byte) (MetadataMessage, error) {
	opts := bencode.DefaultDecodeOptions()
	opts.MaxDepth = 2

	v, n, err := bencode.DecodePrefix(payload, opts)
	if err != nil {
		return MetadataMessage{}, fmt.Errorf("%w: ut_metadata header: %w", ErrMalformedMessage, err)
	}

	d, ok := v.Dict()
	if !ok {
		return MetadataMessage{}, fmt.Errorf("%w: ut_metadata header is a %s", ErrMalformedMessage, v.Kind())
	}

	typ, err := bencode.LookupInt(d, "msg_type")
	if err != nil {
		return MetadataMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	piece, err := bencode.LookupInt(d, "piece")
	if err != nil {
		return MetadataMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if piece < 0 || piece >= MaxMetadataSize/MetadataPieceSize {
		return MetadataMessage{}, fmt.Errorf("%w: metadata piece %d", ErrMalformedMessage, piece)
	}

	msg := MetadataMessage{Type: MetadataMsgType(typ), Piece: int(piece)}

	switch msg.Type {
	case MetadataRequest, MetadataReject:
		if n != len(payload) {
			return MetadataMessage{}, fmt.Errorf("%w: %d trailing bytes after %s", ErrMalformedMessage, len(payload)-n, msg.Type)
		}
	case MetadataData:
		size, err := bencode.LookupInt(d, "total_size")
		if err != nil {
			return MetadataMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}

		if size <= 0 || size > MaxMetadataSize {
			return MetadataMessage{}, fmt.Errorf("%w: total_size %d", ErrMalformedMessage, size)
		}

		msg.TotalSize = size
		msg.Data = payload[n:]

		if len(msg.Data) > MetadataPieceSize {
			return MetadataMessage{}, fmt.Errorf("%w: metadata piece of %d bytes", ErrMalformedMessage, len(msg.Data))
		}
	default:
		return MetadataMessage{}, fmt.Errorf("%w: ut_metadata msg_type %d", ErrMalformedMessage, typ)
	}

	return msg, nil
}

// Encode returns the payload for m.
func (m MetadataMessage) Encode() []byte {
	hdr := bencode.NewDict().
		Put("msg_type", bencode.NewInt(int64(m.Type))).
		Put("piece", bencode.NewInt(int64(m.Piece)))

	if m.Type == MetadataData {
		hdr.Put("total_size", bencode.NewInt(m.TotalSize))
		return append(hdr.Encode(), m.Data...)
	}

	return hdr.Encode()
}

// MetadataBuffer assembles an info dictionary from ut_metadata pieces.
type MetadataBuffer struct {
	data []byte
	have []bool
	left int
}

// NewMetadataBuffer returns a buffer for an info dictionary of size bytes.
func NewMetadataBuffer(size int64) (*MetadataBuffer, error) {
	if size <= 0 || size > MaxMetadataSize {
		return nil, fmt.Errorf("invalid metadata size %d", size)
	}

	pieces := int((size + MetadataPieceSize - 1) / MetadataPieceSize)

	return &MetadataBuffer{
		data: make([]byte, size),
		have: make([]bool, pieces),
		left: pieces,
	}, nil
}

// Pieces returns the number of pieces.
func (b *MetadataBuffer) Pieces() int { return len(b.have) }

// Missing returns the indexes not yet received.
func (b *MetadataBuffer) Missing() []int {
	var out []int

	for i, ok := range b.have {
		if !ok {
			out = append(out, i)
		}
	}

	return out
}

// Put stores one piece. Every piece but the last must be exactly
// MetadataPieceSize bytes.
func (b *MetadataBuffer) Put(piece int, data []byte) error {
	if piece < 0 || piece >= len(b.have) {
		return fmt.Errorf("%w: metadata piece %d of %d", ErrMalformedMessage, piece, len(b.have))
	}

	off := piece * MetadataPieceSize

	want := min(MetadataPieceSize, len(b.data)-off)
	if len(data) != want {
		return fmt.Errorf("%w: metadata piece %d is %d bytes, want %d", ErrMalformedMessage, piece, len(data), want)
	}

	copy(b.data[off:], data)

	if !b.have[piece] {
		b.have[piece] = true
		b.left--
	}

	return nil
}

// Complete reports whether every piece has arrived.
func (b *MetadataBuffer) Complete() bool { return b.left == 0 }

// Verify checks the assembled bytes against infoHash and returns them.
func (b *MetadataBuffer) Verify(infoHash Hash) ([]byte, error) {
	if !b.Complete() {
		return nil, fmt.Errorf("metadata incomplete: %d pieces missing", b.left)
	}

	sum := sha1.Sum(b.data)
	if !bytes.Equal(sum[:], infoHash[:]) {
		return nil, fmt.Errorf("%w: metadata hashes to %x", ErrInfoHashMismatch, sum)
	}

	return b.data, nil
}

// FetchMetadata downloads the info dictionary from c over ut_metadata and
// checks it against the connection's info-hash. It reads from c, so no
// other goroutine may read concurrently. Cancelling ctx closes c.
func FetchMetadata(ctx context.Context, c *Conn) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if !c.Reserved().SupportsExtended() {
		return nil, ErrExtendedNotSupported
	}

	for c.State() != ConnExtensionsNegotiated {
		if _, err := c.ReadMsg(); err != nil {
			return nil, ctxErr(ctx, err)
		}
	}

	hs, _ := c.PeerExtensions()
	if !c.SupportsExtension(ExtensionMetadata) || hs.MetadataSize <= 0 {
		return nil, fmt.Errorf("%w: peer does not serve metadata", ErrUnknownExtension)
	}

	buf, err := NewMetadataBuffer(hs.MetadataSize)
	if err != nil {
		return nil, err
	}

	for piece := range buf.Pieces() {
		req := MetadataMessage{Type: MetadataRequest, Piece: piece}
		if err := c.SendExtended(ExtensionMetadata, req.Encode()); err != nil {
			return nil, ctxErr(ctx, err)
		}
	}

	for !buf.Complete() {
		msg, err := c.ReadMsg()
		if err != nil {
			return nil, ctxErr(ctx, err)
		}

		if msg.ID != MsgExtended || msg.ExtendedID == ExtHandshakeID {
			continue
		}

		if name, err := c.IncomingExtension(msg); err != nil || name != ExtensionMetadata {
			continue
		}

		mm, err := ParseMetadataMessage(msg.Payload)
		if err != nil {
			return nil, err
		}

		switch mm.Type {
		case MetadataReject:
			return nil, fmt.Errorf("peer rejected metadata piece %d", mm.Piece)
		case MetadataData:
			if mm.TotalSize != hs.MetadataSize {
				return nil, fmt.Errorf("%w: total_size %d, announced %d", ErrMalformedMessage, mm.TotalSize, hs.MetadataSize)
			}

			if err := buf.Put(mm.Piece, mm.Data); err != nil {
				return nil, err
			}
		}
	}

	info, err := buf.Verify(c.InfoHash())
	if err != nil {
		return nil, err
	}

	return bytes.Clone(info), nil
}

// ServeMetadata answers a ut_metadata request in msg from info, which
// must be the bencoded info dictionary, or rejects it when info is nil.
// It reports whether msg was a metadata message.
func ServeMetadata(c *Conn, msg Message, info []byte) (bool, error) {
	if msg.ID != MsgExtended || msg.ExtendedID == ExtHandshakeID {
		return false, nil
	}

	if name, err := c.IncomingExtension(msg); err != nil || name != ExtensionMetadata {
		return false, nil
	}

	mm, err := ParseMetadataMessage(msg.Payload)
	if err != nil {
		return true, err
	}

	if mm.Type != MetadataRequest {
		return true, nil
	}

	off := mm.Piece * MetadataPieceSize
	if info == nil || off >= len(info) {
		reply := MetadataMessage{Type: MetadataReject, Piece: mm.Piece}
		return true, c.SendExtended(ExtensionMetadata, reply.Encode())
	}

	reply := MetadataMessage{
		Type:      MetadataData,
		Piece:     mm.Piece,
		TotalSize: int64(len(info)),
		Data:      info[off:min(off+MetadataPieceSize, len(info))],
	}

	return true, c.SendExtended(ExtensionMetadata, reply.Encode())
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ErrConnClosed) {
		return ctx.Err()
	}

	return err
}
