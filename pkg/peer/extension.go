package peer

import (
	"fmt"
	"maps"
	"net"
	"slices"

	"github.com/NamanBalaji/bitwire/pkg/bencode"
)

// ExtHandshakeID is the extended message id reserved for the extended
// handshake itself.
const ExtHandshakeID uint8 = 0

// ExtensionMetadata is the BEP 9 metadata exchange extension.
const ExtensionMetadata = "ut_metadata"

// ExtendedHandshake is the BEP 10 handshake payload. Only M is required on
// the wire; the other fields are zero when absent or of the wrong type.
type ExtendedHandshake struct {
	// M maps extension names to the ids the sender wants to receive them
	// under. An id of zero disables the extension.
	M            map[string]uint8
	Version      string
	Port         uint16
	YourIP       net.IP
	IPv4         net.IP
	IPv6         net.IP
	Reqq         int64
	MetadataSize int64
}

// ParseExtendedHandshake decodes an extended handshake payload. Unknown
// keys, and known informational keys of the wrong type, are ignored.
// Entries of "m" that are not integers in 0..255 are skipped.
func ParseExtendedHandshake(payload []byte) (ExtendedHandshake, error) {
	v, err := bencode.Decode(payload)
	if err != nil {
		return ExtendedHandshake{}, fmt.Errorf("%w: %w", ErrInvalidExtendedHandshake, err)
	}

	d, ok := v.Dict()
	if !ok {
		return ExtendedHandshake{}, fmt.Errorf("%w: payload is a %s", ErrInvalidExtendedHandshake, v.Kind())
	}

	m, err := bencode.LookupDict(d, "m")
	if err != nil {
		return ExtendedHandshake{}, fmt.Errorf("%w: %w", ErrInvalidExtendedHandshake, err)
	}

	hs := ExtendedHandshake{M: make(map[string]uint8, m.Len())}

	m.Range(func(key []byte, v bencode.Value) bool {
		if id, ok := v.Int(); ok && id >= 0 && id <= 255 {
			hs.M[string(key)] = uint8(id)
		}

		return true
	})

	if s, err := bencode.LookupStr(d, "v"); err == nil {
		hs.Version = s
	}

	if p, err := bencode.LookupInt(d, "p"); err == nil && p > 0 && p <= 65535 {
		hs.Port = uint16(p)
	}

	if b, err := bencode.LookupBytes(d, "yourip"); err == nil && (len(b) == net.IPv4len || len(b) == net.IPv6len) {
		hs.YourIP = slices.Clone(net.IP(b))
	}

	if b, err := bencode.LookupBytes(d, "ipv4"); err == nil && len(b) == net.IPv4len {
		hs.IPv4 = slices.Clone(net.IP(b))
	}

	if b, err := bencode.LookupBytes(d, "ipv6"); err == nil && len(b) == net.IPv6len {
		hs.IPv6 = slices.Clone(net.IP(b))
	}

	if n, err := bencode.LookupInt(d, "reqq"); err == nil && n > 0 {
		hs.Reqq = n
	}

	if n, err := bencode.LookupInt(d, "metadata_size"); err == nil && n > 0 {
		hs.MetadataSize = n
	}

	return hs, nil
}

// Value builds the bencode form of h. Zero fields are left out.
func (h ExtendedHandshake) Value() *bencode.Mut {
	m := bencode.NewDict()
	for name, id := range h.M {
		m.Put(name, bencode.NewInt(int64(id)))
	}

	d := bencode.NewDict().Put("m", m)

	if h.Version != "" {
		d.Put("v", bencode.NewString(h.Version))
	}

	if h.Port != 0 {
		d.Put("p", bencode.NewInt(int64(h.Port)))
	}

	if ip := compactIP(h.YourIP); ip != nil {
		d.Put("yourip", bencode.NewBytes(ip))
	}

	if ip := h.IPv4.To4(); ip != nil {
		d.Put("ipv4", bencode.NewBytes(ip))
	}

	if ip := h.IPv6.To16(); ip != nil && h.IPv6.To4() == nil {
		d.Put("ipv6", bencode.NewBytes(ip))
	}

	if h.Reqq > 0 {
		d.Put("reqq", bencode.NewInt(h.Reqq))
	}

	if h.MetadataSize > 0 {
		d.Put("metadata_size", bencode.NewInt(h.MetadataSize))
	}

	return d
}

// Encode returns the canonical payload for h.
func (h ExtendedHandshake) Encode() []byte {
	return h.Value().Encode()
}

func compactIP(ip net.IP) []byte {
	if ip == nil {
		return nil
	}

	if v4 := ip.To4(); v4 != nil {
		return v4
	}

	return ip.To16()
}

// ExtensionTable maps extension names to message ids for one direction of
// one connection.
type ExtensionTable struct {
	byName map[string]uint8
	byID   map[uint8]string
}

// NewExtensionTable returns a table holding the non-zero entries of m.
func NewExtensionTable(m map[string]uint8) *ExtensionTable {
	t := &ExtensionTable{
		byName: make(map[string]uint8, len(m)),
		byID:   make(map[uint8]string, len(m)),
	}
	t.Merge(m)

	return t
}

// Merge applies an update: names with a non-zero id are added or
// remapped, names with id zero are removed and names absent from m keep
// their current id. Names are applied in sorted order, so when two names
// share an id the greater one keeps it.
func (t *ExtensionTable) Merge(m map[string]uint8) {
	for _, name := range slices.Sorted(maps.Keys(m)) {
		id := m[name]

		if old, ok := t.byName[name]; ok {
			delete(t.byID, old)
			delete(t.byName, name)
		}

		if id == 0 {
			continue
		}

		if prev, ok := t.byID[id]; ok {
			delete(t.byName, prev)
		}

		t.byName[name] = id
		t.byID[id] = name
	}
}

// ID returns the id registered for name.
func (t *ExtensionTable) ID(name string) (uint8, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the extension registered under id.
func (t *ExtensionTable) Name(id uint8) (string, bool) {
	name, ok := t.byID[id]
	return name, ok
}

// Names returns the registered names in sorted order.
func (t *ExtensionTable) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Map returns a copy of the table.
func (t *ExtensionTable) Map() map[string]uint8 {
	out := make(map[string]uint8, len(t.byName))
	for k, v := range t.byName {
		out[k] = v
	}

	return out
}

// Len returns the number of enabled extensions.
func (t *ExtensionTable) Len() int { return len(t.byName) }

// Extensions holds both directions of BEP 10 negotiation for a
// connection. Incoming extended messages carry ids from the local table,
// which we advertised; outgoing ones must use the ids the peer advertised.
type Extensions struct {
	local    *ExtensionTable
	remote   *ExtensionTable
	peer     ExtendedHandshake
	received bool
}

// NewExtensions returns negotiation state advertising local.
func NewExtensions(local map[string]uint8) *Extensions {
	return &Extensions{
		local:  NewExtensionTable(local),
		remote: NewExtensionTable(nil),
	}
}

// Handshake returns our extended handshake payload with meta's
// informational fields and the local table as "m".
func (e *Extensions) Handshake(meta ExtendedHandshake) []byte {
	meta.M = e.local.Map()
	return meta.Encode()
}

// HandleHandshake parses a handshake from the peer and merges its table
// into the remote one. It may be called again whenever the peer resends.
func (e *Extensions) HandleHandshake(payload []byte) (ExtendedHandshake, error) {
	hs, err := ParseExtendedHandshake(payload)
	if err != nil {
		return ExtendedHandshake{}, err
	}

	e.remote.Merge(hs.M)
	e.peer = hs
	e.received = true

	return hs, nil
}

// Negotiated reports whether the peer's extended handshake has arrived.
func (e *Extensions) Negotiated() bool { return e.received }

// Peer returns the latest extended handshake from the peer.
func (e *Extensions) Peer() ExtendedHandshake { return e.peer }

// Local returns the table we advertised.
func (e *Extensions) Local() *ExtensionTable { return e.local }

// Remote returns the table the peer advertised.
func (e *Extensions) Remote() *ExtensionTable { return e.remote }

// Incoming resolves the extension an incoming extended message is for.
func (e *Extensions) Incoming(extID uint8) (string, error) {
	name, ok := e.local.Name(extID)
	if !ok {
		return "", fmt.Errorf("%w: incoming id %d", ErrUnknownExtension, extID)
	}

	return name, nil
}

// Outgoing builds an extended message for name using the peer's id.
func (e *Extensions) Outgoing(name string, payload []byte) (Message, error) {
	id, ok := e.remote.ID(name)
	if !ok {
		return Message{}, fmt.Errorf("%w: peer has no id for %q", ErrUnknownExtension, name)
	}

	return Extended(id, payload), nil
}
