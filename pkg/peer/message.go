package peer

import (
	"encoding/binary"
	"fmt"
)

// MessageID is the one-byte type that follows the length prefix.
type MessageID uint8

const (
	MsgChoke MessageID = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
	MsgPort
	// MsgExtended carries BEP 10 extension messages.
	MsgExtended MessageID = 20
	// MsgKeepAlive marks the zero-length frame. It is never written as an
	// id byte and an id of 0xFF on the wire is rejected as unknown.
	MsgKeepAlive MessageID = 0xFF
)

// DefaultMaxMessageLen bounds the length prefix of a single frame. It fits
// a 16 KiB block with its header and a bitfield for over a million pieces.
const DefaultMaxMessageLen = 1 << 17

const lenPrefix = 4

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not-interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	case MsgPort:
		return "port"
	case MsgExtended:
		return "extended"
	case MsgKeepAlive:
		return "keep-alive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Known reports whether id may appear on the wire.
func (id MessageID) Known() bool {
	return id <= MsgPort || id == MsgExtended
}

// Message is one decoded peer wire message. Only the fields relevant to ID
// are set. Payload holds the bitfield bits, the piece block or the
// extended payload; when the message came from a Framer it aliases the
// framer's buffer.
type Message struct {
	ID         MessageID
	Index      uint32 // have, request, piece, cancel
	Begin      uint32 // request, piece, cancel
	Length     uint32 // request, cancel
	Port       uint16 // port
	ExtendedID uint8  // extended
	Payload    []byte
}

// KeepAlive returns the zero-length keep-alive message.
func KeepAlive() Message { return Message{ID: MsgKeepAlive} }

// Choke returns a choke message.
func Choke() Message { return Message{ID: MsgChoke} }

// Unchoke returns an unchoke message.
func Unchoke() Message { return Message{ID: MsgUnchoke} }

// Interested returns an interested message.
func Interested() Message { return Message{ID: MsgInterested} }

// NotInterested returns a not-interested message.
func NotInterested() Message { return Message{ID: MsgNotInterested} }

// Have announces a completed piece.
func Have(index uint32) Message { return Message{ID: MsgHave, Index: index} }

// BitfieldMessage advertises the pieces we hold.
func BitfieldMessage(bits []byte) Message { return Message{ID: MsgBitfield, Payload: bits} }

// Request asks for a block.
func Request(index, begin, length uint32) Message {
	return Message{ID: MsgRequest, Index: index, Begin: begin, Length: length}
}

// Piece carries block data.
func Piece(index, begin uint32, block []byte) Message {
	return Message{ID: MsgPiece, Index: index, Begin: begin, Payload: block}
}

// Cancel withdraws a request.
func Cancel(index, begin, length uint32) Message {
	return Message{ID: MsgCancel, Index: index, Begin: begin, Length: length}
}

// Port advertises our DHT port.
func Port(port uint16) Message { return Message{ID: MsgPort, Port: port} }

// Extended wraps an extension payload under the given extension id.
func Extended(extID uint8, payload []byte) Message {
	return Message{ID: MsgExtended, ExtendedID: extID, Payload: payload}
}

// Len returns the value of the length prefix for m: the id byte plus the
// body, or zero for a keep-alive.
func (m Message) Len() int {
	switch m.ID {
	case MsgKeepAlive:
		return 0
	case MsgHave:
		return 1 + 4
	case MsgRequest, MsgCancel:
		return 1 + 12
	case MsgPiece:
		return 1 + 8 + len(m.Payload)
	case MsgPort:
		return 1 + 2
	case MsgExtended:
		return 1 + 1 + len(m.Payload)
	case MsgBitfield:
		return 1 + len(m.Payload)
	default:
		return 1
	}
}

// AppendBinary appends the framed wire form of m to dst.
func (m Message) AppendBinary(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(m.Len()))
	if m.ID == MsgKeepAlive {
		return dst
	}

	dst = append(dst, byte(m.ID))

	switch m.ID {
	case MsgHave:
		dst = binary.BigEndian.AppendUint32(dst, m.Index)
	case MsgRequest, MsgCancel:
		dst = binary.BigEndian.AppendUint32(dst, m.Index)
		dst = binary.BigEndian.AppendUint32(dst, m.Begin)
		dst = binary.BigEndian.AppendUint32(dst, m.Length)
	case MsgPiece:
		dst = binary.BigEndian.AppendUint32(dst, m.Index)
		dst = binary.BigEndian.AppendUint32(dst, m.Begin)
		dst = append(dst, m.Payload...)
	case MsgPort:
		dst = binary.BigEndian.AppendUint16(dst, m.Port)
	case MsgExtended:
		dst = append(dst, m.ExtendedID)
		dst = append(dst, m.Payload...)
	case MsgBitfield:
		dst = append(dst, m.Payload...)
	}

	return dst
}

// MarshalBinary returns the framed wire form of m.
func (m Message) MarshalBinary() ([]byte, error) {
	if m.ID != MsgKeepAlive && !m.ID.Known() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageID, m.ID)
	}

	return m.AppendBinary(make([]byte, 0, lenPrefix+m.Len())), nil
}

func (m Message) String() string {
	switch m.ID {
	case MsgHave:
		return fmt.Sprintf("have(%d)", m.Index)
	case MsgRequest, MsgCancel:
		return fmt.Sprintf("%s(%d, %d, %d)", m.ID, m.Index, m.Begin, m.Length)
	case MsgPiece:
		return fmt.Sprintf("piece(%d, %d, %d bytes)", m.Index, m.Begin, len(m.Payload))
	case MsgPort:
		return fmt.Sprintf("port(%d)", m.Port)
	case MsgExtended:
		return fmt.Sprintf("extended(%d, %d bytes)", m.ExtendedID, len(m.Payload))
	case MsgBitfield:
		return fmt.Sprintf("bitfield(%d bytes)", len(m.Payload))
	default:
		return m.ID.String()
	}
}

// fixedBodyLen returns the exact body length (excluding the id byte) for
// ids with a fixed layout and -1 for variable ones.
func fixedBodyLen(id MessageID) int {
	switch id {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested:
		return 0
	case MsgHave:
		return 4
	case MsgRequest, MsgCancel:
		return 12
	case MsgPort:
		return 2
	default:
		return -1
	}
}

// minBodyLen is the smallest acceptable body for variable-length ids.
func minBodyLen(id MessageID) int {
	switch id {
	case MsgPiece:
		return 8
	case MsgExtended:
		return 1
	default:
		return 0
	}
}

// checkBodyLen validates the length prefix against the id's layout. It
// needs only the prefix and the id byte, so framing can reject a bad
// frame before its body has arrived.
func checkBodyLen(id MessageID, bodyLen int) error {
	if !id.Known() {
		return fmt.Errorf("%w: %d", ErrUnknownMessageID, id)
	}

	if want := fixedBodyLen(id); want >= 0 && bodyLen != want {
		return fmt.Errorf("%w: %s body is %d bytes, want %d", ErrMalformedMessage, id, bodyLen, want)
	}

	if bodyLen < minBodyLen(id) {
		return fmt.Errorf("%w: %s body is %d bytes, want at least %d", ErrMalformedMessage, id, bodyLen, minBodyLen(id))
	}

	return nil
}

// parseBody decodes a validated body. Payload aliases body.
func parseBody(id MessageID, body []byte) Message {
	msg := Message{ID: id}

	switch id {
	case MsgHave:
		msg.Index = binary.BigEndian.Uint32(body)
	case MsgRequest, MsgCancel:
		msg.Index = binary.BigEndian.Uint32(body[0:4])
		msg.Begin = binary.BigEndian.Uint32(body[4:8])
		msg.Length = binary.BigEndian.Uint32(body[8:12])
	case MsgPiece:
		msg.Index = binary.BigEndian.Uint32(body[0:4])
		msg.Begin = binary.BigEndian.Uint32(body[4:8])
		msg.Payload = body[8:]
	case MsgPort:
		msg.Port = binary.BigEndian.Uint16(body)
	case MsgExtended:
		msg.ExtendedID = body[0]
		msg.Payload = body[1:]
	case MsgBitfield:
		msg.Payload = body
	}

	return msg
}
