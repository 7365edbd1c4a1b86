package bencode

import (
	"bytes"
	"io"
	"sort"
	"strconv"
)

// Encode returns the canonical bencoding of v. Dictionary keys are always
// emitted in raw byte order regardless of how v stores them.
func Encode(v Value) []byte {
	return AppendEncode(nil, v)
}

// AppendEncode appends the canonical bencoding of v to dst.
func AppendEncode(dst []byte, v Value) []byte {
	switch v.Kind() {
	case KindInt:
		n, _ := v.Int()
		return AppendInt(dst, n)
	case KindBytes:
		b, _ := v.Bytes()
		return AppendBytes(dst, b)
	case KindList:
		l, _ := v.List()
		dst = append(dst, 'l')
		for i := 0; i < l.Len(); i++ {
			item, _ := l.Get(i)
			dst = AppendEncode(dst, item)
		}
		return append(dst, 'e')
	case KindDict:
		d, _ := v.Dict()
		return appendDict(dst, d)
	}

	return dst
}

type dictEntry struct {
	key []byte
	val Value
}

func appendDict(dst []byte, d Dict) []byte {
	entries := make([]dictEntry, 0, d.Len())
	d.Range(func(k []byte, v Value) bool {
		entries = append(entries, dictEntry{key: k, val: v})
		return true
	})

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	dst = append(dst, 'd')
	for _, e := range entries {
		dst = AppendBytes(dst, e.key)
		dst = AppendEncode(dst, e.val)
	}

	return append(dst, 'e')
}

// AppendInt appends i<n>e.
func AppendInt(dst []byte, n int64) []byte {
	dst = append(dst, 'i')
	dst = strconv.AppendInt(dst, n, 10)

	return append(dst, 'e')
}

// AppendBytes appends <len>:<b>.
func AppendBytes(dst, b []byte) []byte {
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, ':')

	return append(dst, b...)
}

// EncodeString encodes a string to bencode format.
func EncodeString(s string) []byte {
	return AppendBytes(nil, []byte(s))
}

// EncodeInt encodes an integer to bencode format.
func EncodeInt(i int64) []byte {
	return AppendInt(nil, i)
}

// Encoder writes canonical bencode to a stream.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder creates a new encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the encoding of v to the stream.
func (e *Encoder) Encode(v Value) error {
	e.buf = AppendEncode(e.buf[:0], v)
	_, err := e.w.Write(e.buf)

	return err
}
