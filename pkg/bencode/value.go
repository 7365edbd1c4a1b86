// Package bencode implements a zero-copy bencode decoder and a canonical
// encoder over a small capability interface shared by borrowed and owned
// value trees.
package bencode

import "unicode/utf8"

// Kind identifies which of the four bencode variants a value holds.
type Kind uint8

const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return "unknown"
	}
}

// Value is read access to a bencode value regardless of how it is stored.
// The decoder, the encoder and every message parser are written against
// this interface, so borrowed (*Ref) and owned (*Mut) trees are
// interchangeable.
type Value interface {
	Kind() Kind
	// Int reports the integer payload, if the value is an integer.
	Int() (int64, bool)
	// Bytes reports the byte string payload without copying.
	Bytes() ([]byte, bool)
	// Str interprets a byte string as UTF-8. Invalid UTF-8 yields false,
	// which is not a parse error.
	Str() (string, bool)
	List() (List, bool)
	Dict() (Dict, bool)
}

// List is read access to a bencode list.
type List interface {
	Get(i int) (Value, bool)
	Len() int
}

// Dict is read access to a bencode dictionary. Keys are raw bytes and are
// never required to be valid UTF-8.
type Dict interface {
	Lookup(key []byte) (Value, bool)
	Len() int
	// Range calls fn for each entry in storage order until fn returns false.
	Range(fn func(key []byte, v Value) bool)
}

// MutValue adds mutable container access to Value.
type MutValue interface {
	Value
	MutList() (MutList, bool)
	MutDict() (MutDict, bool)
}

// MutList is a growable list. Values are copied on the way in.
type MutList interface {
	List
	Push(v Value)
	Insert(i int, v Value) bool
	Set(i int, v Value) bool
	Remove(i int) (Value, bool)
}

// MutDict is a dictionary supporting insertion and removal. Values are
// copied on the way in.
type MutDict interface {
	Dict
	// Insert stores v under key and returns the value it replaced, if any.
	Insert(key []byte, v Value) (Value, bool)
	Remove(key []byte) (Value, bool)
}

func bytesToStr(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}

	return string(b), true
}

// Items returns the list elements in order.
func Items(l List) []Value {
	out := make([]Value, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		v, _ := l.Get(i)
		out = append(out, v)
	}

	return out
}

// Equal reports whether a and b hold the same bencode value. Dictionary
// order is not significant.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}

	switch a.Kind() {
	case KindInt:
		x, _ := a.Int()
		y, _ := b.Int()
		return x == y
	case KindBytes:
		x, _ := a.Bytes()
		y, _ := b.Bytes()
		return string(x) == string(y)
	case KindList:
		x, _ := a.List()
		y, _ := b.List()
		if x.Len() != y.Len() {
			return false
		}
		for i := 0; i < x.Len(); i++ {
			xv, _ := x.Get(i)
			yv, _ := y.Get(i)
			if !Equal(xv, yv) {
				return false
			}
		}
		return true
	case KindDict:
		x, _ := a.Dict()
		y, _ := b.Dict()
		if x.Len() != y.Len() {
			return false
		}
		equal := true
		x.Range(func(k []byte, xv Value) bool {
			yv, ok := y.Lookup(k)
			if !ok || !Equal(xv, yv) {
				equal = false
			}
			return equal
		})
		return equal
	}

	return false
}
