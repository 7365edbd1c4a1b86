// Package krpc encodes and decodes the bencoded KRPC messages exchanged by
// DHT nodes (BEP 5). It covers the four standard queries, their responses
// and error replies. Routing is left to callers.
package krpc

import (
	"errors"
	"fmt"

	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

// NodeID identifies a DHT node. It shares the info-hash keyspace.
type NodeID = peer.Hash

// Type is the value of the "y" key.
type Type string

const (
	TypeQuery    Type = "q"
	TypeResponse Type = "r"
	TypeError    Type = "e"
)

// Method is the value of the "q" key of a query.
type Method string

const (
	MethodPing         Method = "ping"
	MethodFindNode     Method = "find_node"
	MethodGetPeers     Method = "get_peers"
	MethodAnnouncePeer Method = "announce_peer"
)

// ErrorCode is the numeric code of an error reply.
type ErrorCode int64

const (
	CodeGeneric       ErrorCode = 201
	CodeServer        ErrorCode = 202
	CodeProtocol      ErrorCode = 203
	CodeMethodUnknown ErrorCode = 204
)

// maxDepth covers the deepest standard message: a response holding a list
// of peer strings.
const maxDepth = 4

var (
	ErrInvalidMessage = errors.New("invalid krpc message")
	ErrUnknownType    = errors.New("unknown krpc message type")
)

// Error is the body of an error reply. It is also returned by Pending
// when a remote node answers a query with an error.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("krpc error %d: %s", e.Code, e.Message)
}

// Message is a parsed KRPC message. Args and Reply borrow from the buffer
// passed to Parse.
type Message struct {
	T []byte
	Y Type
	Q Method
	// Args is the "a" dictionary of a query.
	Args bencode.Dict
	// Reply is the "r" dictionary of a response.
	Reply bencode.Dict
	Err   *Error
	// V is the optional client version.
	V []byte
}

// Parse decodes one KRPC message. Unknown top-level keys are ignored.
func Parse(data []byte) (*Message, error) {
	root, err := bencode.DecodeWithOptions(data, bencode.DecodeOptions{MaxDepth: maxDepth, EnforceFullDecode: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	dict, ok := root.Dict()
	if !ok {
		return nil, fmt.Errorf("%w: not a dictionary", ErrInvalidMessage)
	}

	msg := &Message{}

	if msg.T, err = bencode.LookupBytes(dict, "t"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	y, err := bencode.LookupStr(dict, "y")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	msg.Y = Type(y)

	if v, err := bencode.LookupBytes(dict, "v"); err == nil {
		msg.V = v
	}

	switch msg.Y {
	case TypeQuery:
		q, err := bencode.LookupStr(dict, "q")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}

		msg.Q = Method(q)

		if msg.Args, err = bencode.LookupDict(dict, "a"); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
	case TypeResponse:
		if msg.Reply, err = bencode.LookupDict(dict, "r"); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
	case TypeError:
		if msg.Err, err = parseError(dict); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, y)
	}

	return msg, nil
}

func parseError(dict bencode.Dict) (*Error, error) {
	list, err := bencode.LookupList(dict, "e")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if list.Len() != 2 {
		return nil, fmt.Errorf("%w: error list has %d items", ErrInvalidMessage, list.Len())
	}

	first, _ := list.Get(0)
	second, _ := list.Get(1)

	code, ok := first.Int()
	if !ok {
		return nil, fmt.Errorf("%w: error code is %s", ErrInvalidMessage, first.Kind())
	}

	text, ok := second.Bytes()
	if !ok {
		return nil, fmt.Errorf("%w: error message is %s", ErrInvalidMessage, second.Kind())
	}

	return &Error{Code: ErrorCode(code), Message: string(text)}, nil
}

// body returns the dictionary that carries node fields.
func (m *Message) body() (bencode.Dict, error) {
	switch {
	case m.Args != nil:
		return m.Args, nil
	case m.Reply != nil:
		return m.Reply, nil
	default:
		return nil, fmt.Errorf("%w: %s message has no body", ErrInvalidMessage, m.Y)
	}
}

func (m *Message) hash(key string) (peer.Hash, error) {
	d, err := m.body()
	if err != nil {
		return peer.Hash{}, err
	}

	b, err := bencode.LookupBytes(d, key)
	if err != nil {
		return peer.Hash{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	h, err := peer.HashFromBytes(b)
	if err != nil {
		return peer.Hash{}, fmt.Errorf("%w: %s: %w", ErrInvalidMessage, key, err)
	}

	return h, nil
}

// NodeID returns the sender's id from the arguments or reply.
func (m *Message) NodeID() (NodeID, error) {
	return m.hash("id")
}

// Target returns the find_node target.
func (m *Message) Target() (NodeID, error) {
	return m.hash("target")
}

// InfoHash returns the info_hash of get_peers and announce_peer.
func (m *Message) InfoHash() (peer.Hash, error) {
	return m.hash("info_hash")
}

// Token returns the announce token.
func (m *Message) Token() ([]byte, error) {
	d, err := m.body()
	if err != nil {
		return nil, err
	}

	tok, err := bencode.LookupBytes(d, "token")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	return tok, nil
}

// AnnouncePort returns the port of an announce_peer query. With
// implied_port set the port is taken from the packet source, reported as
// implied=true.
func (m *Message) AnnouncePort() (port uint16, implied bool, err error) {
	if m.Args == nil {
		return 0, false, fmt.Errorf("%w: not a query", ErrInvalidMessage)
	}

	if ip, err := bencode.LookupInt(m.Args, "implied_port"); err == nil && ip != 0 {
		return 0, true, nil
	}

	p, err := bencode.LookupInt(m.Args, "port")
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if p <= 0 || p > 0xFFFF {
		return 0, false, fmt.Errorf("%w: port %d out of range", ErrInvalidMessage, p)
	}

	return uint16(p), false, nil
}

// Nodes returns the compact node list of a response, or nil if absent.
func (m *Message) Nodes() ([]NodeInfo, error) {
	if m.Reply == nil {
		return nil, nil
	}

	b, err := bencode.LookupBytes(m.Reply, "nodes")
	if err != nil {
		if errors.Is(err, bencode.ErrMissingKey) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	return ParseCompactNodes(b)
}

// Peers returns the "values" list of a get_peers response, or nil if
// absent.
func (m *Message) Peers() ([]Peer, error) {
	if m.Reply == nil {
		return nil, nil
	}

	list, err := bencode.LookupList(m.Reply, "values")
	if err != nil {
		if errors.Is(err, bencode.ErrMissingKey) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	peers := make([]Peer, 0, list.Len())

	for _, v := range bencode.Items(list) {
		b, ok := v.Bytes()
		if !ok {
			return nil, fmt.Errorf("%w: peer value is %s", ErrInvalidMessage, v.Kind())
		}

		p, err := ParseCompactPeer(b)
		if err != nil {
			return nil, err
		}

		peers = append(peers, p)
	}

	return peers, nil
}
