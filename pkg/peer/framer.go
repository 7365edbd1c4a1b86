package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ParseMessage decodes one frame from the front of buf. It returns the
// message and the number of bytes consumed. A result of n == 0 with a nil
// error means buf does not yet hold a complete frame and the caller
// should retry with more bytes. The returned Payload aliases buf.
//
// A length prefix above maxLen, an unknown id or a length that does not
// fit the id's layout is reported as soon as the prefix and id byte are
// available, without waiting for the rest of the frame.
func ParseMessage(buf []byte, maxLen uint32) (Message, int, error) {
	if len(buf) < lenPrefix {
		return Message{}, 0, nil
	}

	length := binary.BigEndian.Uint32(buf)
	if length == 0 {
		return KeepAlive(), lenPrefix, nil
	}

	if length > maxLen {
		return Message{}, 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxLen)
	}

	if len(buf) < lenPrefix+1 {
		return Message{}, 0, nil
	}

	id := MessageID(buf[lenPrefix])
	if err := checkBodyLen(id, int(length)-1); err != nil {
		return Message{}, 0, err
	}

	total := lenPrefix + int(length)
	if len(buf) < total {
		return Message{}, 0, nil
	}

	return parseBody(id, buf[lenPrefix+1:total:total]), total, nil
}

// Framer accumulates bytes from a stream and splits them into messages.
// Payloads of returned messages alias the framer's buffer and stay valid
// until the next call to Write or Reset.
type Framer struct {
	buf    []byte
	start  int
	maxLen uint32
}

// NewFramer returns a framer that rejects frames whose length prefix
// exceeds maxLen. Zero selects DefaultMaxMessageLen.
func NewFramer(maxLen uint32) *Framer {
	if maxLen == 0 {
		maxLen = DefaultMaxMessageLen
	}

	return &Framer{maxLen: maxLen}
}

// Write appends p to the pending bytes. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	if f.start > 0 {
		n := copy(f.buf, f.buf[f.start:])
		f.buf = f.buf[:n]
		f.start = 0
	}

	f.buf = append(f.buf, p...)

	return len(p), nil
}

// Next returns the next complete message. ok is false when more bytes are
// needed. After an error the framer must be discarded along with its
// connection.
func (f *Framer) Next() (msg Message, ok bool, err error) {
	msg, n, err := ParseMessage(f.buf[f.start:], f.maxLen)
	if err != nil || n == 0 {
		return Message{}, false, err
	}

	f.start += n

	return msg, true, nil
}

// Pending returns the unconsumed bytes without copying.
func (f *Framer) Pending() []byte {
	return f.buf[f.start:]
}

// Consume discards the first n pending bytes.
func (f *Framer) Consume(n int) {
	f.start += min(n, len(f.buf)-f.start)
}

// Buffered returns the number of unconsumed bytes.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.start
}

// Reset drops all pending bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.start = 0
}

const readChunk = 32 << 10

// Reader reads framed messages from a byte stream.
type Reader struct {
	r     io.Reader
	f     *Framer
	chunk []byte
}

// NewReader wraps r. Frames longer than maxLen are rejected; zero selects
// DefaultMaxMessageLen.
func NewReader(r io.Reader, maxLen uint32) *Reader {
	return &Reader{r: r, f: NewFramer(maxLen), chunk: make([]byte, readChunk)}
}

// Framer exposes the reader's buffer so that a handshake can be parsed
// from the same bytes before message framing starts.
func (r *Reader) Framer() *Framer {
	return r.f
}

// Fill reads once from the underlying stream into the buffer. Bytes that
// arrive together with an error are kept and the error is left for the
// next call to report.
func (r *Reader) Fill() error {
	n, err := r.r.Read(r.chunk)
	if n > 0 {
		_, _ = r.f.Write(r.chunk[:n])
		return nil
	}

	if err != nil {
		if errors.Is(err, io.EOF) && r.f.Buffered() > 0 {
			return io.ErrUnexpectedEOF
		}

		return err
	}

	return nil
}

// ReadMsg returns the next message. Its Payload stays valid until the
// next call to ReadMsg.
func (r *Reader) ReadMsg() (Message, error) {
	for {
		msg, ok, err := r.f.Next()
		if err != nil {
			return Message{}, err
		}

		if ok {
			return msg, nil
		}

		if err := r.Fill(); err != nil {
			return Message{}, err
		}
	}
}

// Writer writes framed messages. Each message goes out in a single Write
// call on the underlying stream.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMsg frames and writes m.
func (w *Writer) WriteMsg(m Message) error {
	if m.ID != MsgKeepAlive && !m.ID.Known() {
		return fmt.Errorf("%w: %d", ErrUnknownMessageID, m.ID)
	}

	w.buf = m.AppendBinary(w.buf[:0])
	_, err := w.w.Write(w.buf)

	return err
}
