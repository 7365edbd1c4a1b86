package bencode

import (
	"fmt"
	"sort"
)

// Mut is an owned, mutable bencode value used to build messages. It never
// aliases caller memory: byte strings and keys are copied on the way in,
// and values added to a Mut container are cloned unless they already are
// a *Mut.
type Mut struct {
	kind Kind
	num  int64
	str  []byte
	list *mutList
	dict *mutDict
}

// NewInt creates an integer value.
func NewInt(n int64) *Mut {
	return &Mut{kind: KindInt, num: n}
}

// NewBytes creates a byte string holding a copy of b.
func NewBytes(b []byte) *Mut {
	return &Mut{kind: KindBytes, str: append([]byte{}, b...)}
}

// NewString creates a byte string from s.
func NewString(s string) *Mut {
	return &Mut{kind: KindBytes, str: []byte(s)}
}

// NewList creates a list holding the given values.
func NewList(items ...Value) *Mut {
	l := &mutList{}
	for _, v := range items {
		l.Push(v)
	}

	return &Mut{kind: KindList, list: l}
}

// NewDict creates an empty dictionary.
func NewDict() *Mut {
	return &Mut{kind: KindDict, dict: &mutDict{m: make(map[string]*Mut)}}
}

// Put inserts a copy of v under key and returns m so calls can be
// chained. Later changes to v do not affect m. It panics if m is not a
// dictionary.
func (m *Mut) Put(key string, v Value) *Mut {
	if m.kind != KindDict {
		panic(fmt.Sprintf("bencode: Put on %s", m.kind))
	}

	m.dict.Insert([]byte(key), v)

	return m
}

// Append pushes a copy of v and returns m. It panics if m is not a list.
func (m *Mut) Append(v Value) *Mut {
	if m.kind != KindList {
		panic(fmt.Sprintf("bencode: Append on %s", m.kind))
	}

	m.list.Push(v)

	return m
}

// Encode returns the canonical encoding of m.
func (m *Mut) Encode() []byte {
	return Encode(m)
}

func (m *Mut) Kind() Kind { return m.kind }

func (m *Mut) Int() (int64, bool) {
	if m.kind != KindInt {
		return 0, false
	}

	return m.num, true
}

func (m *Mut) Bytes() ([]byte, bool) {
	if m.kind != KindBytes {
		return nil, false
	}

	return m.str, true
}

func (m *Mut) Str() (string, bool) {
	if m.kind != KindBytes {
		return "", false
	}

	return bytesToStr(m.str)
}

func (m *Mut) List() (List, bool) {
	if m.kind != KindList {
		return nil, false
	}

	return m.list, true
}

func (m *Mut) Dict() (Dict, bool) {
	if m.kind != KindDict {
		return nil, false
	}

	return m.dict, true
}

func (m *Mut) MutList() (MutList, bool) {
	if m.kind != KindList {
		return nil, false
	}

	return m.list, true
}

func (m *Mut) MutDict() (MutDict, bool) {
	if m.kind != KindDict {
		return nil, false
	}

	return m.dict, true
}

// own deep-copies v for storage in a container. Owned values are copied
// too, so no node is reachable from two places and a container inserted
// into itself stores a snapshot rather than a cycle.
func own(v Value) *Mut {
	return Clone(v)
}

// Clone deep-copies any value into owned storage, detaching it from the
// buffer a *Ref borrows from.
func Clone(v Value) *Mut {
	switch v.Kind() {
	case KindInt:
		n, _ := v.Int()
		return NewInt(n)
	case KindBytes:
		b, _ := v.Bytes()
		return NewBytes(b)
	case KindList:
		src, _ := v.List()
		out := &mutList{items: make([]*Mut, 0, src.Len())}
		for i := 0; i < src.Len(); i++ {
			item, _ := src.Get(i)
			out.items = append(out.items, Clone(item))
		}
		return &Mut{kind: KindList, list: out}
	case KindDict:
		src, _ := v.Dict()
		out := NewDict()
		src.Range(func(k []byte, item Value) bool {
			out.dict.m[string(k)] = Clone(item)
			return true
		})
		return out
	default:
		panic(fmt.Sprintf("bencode: clone of %s", v.Kind()))
	}
}

type mutList struct {
	items []*Mut
}

func (l *mutList) Get(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return nil, false
	}

	return l.items[i], true
}

func (l *mutList) Len() int { return len(l.items) }

func (l *mutList) Push(v Value) {
	l.items = append(l.items, own(v))
}

func (l *mutList) Insert(i int, v Value) bool {
	if i < 0 || i > len(l.items) {
		return false
	}

	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = own(v)

	return true
}

func (l *mutList) Set(i int, v Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}

	l.items[i] = own(v)

	return true
}

func (l *mutList) Remove(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return nil, false
	}

	v := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)

	return v, true
}

type mutDict struct {
	m map[string]*Mut
}

func (d *mutDict) Lookup(key []byte) (Value, bool) {
	v, ok := d.m[string(key)]
	if !ok {
		return nil, false
	}

	return v, true
}

func (d *mutDict) Len() int { return len(d.m) }

// Range visits entries in byte order of their keys.
func (d *mutDict) Range(fn func(key []byte, v Value) bool) {
	keys := make([]string, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !fn([]byte(k), d.m[k]) {
			return
		}
	}
}

func (d *mutDict) Insert(key []byte, v Value) (Value, bool) {
	old, replaced := d.m[string(key)]
	d.m[string(key)] = own(v)

	if !replaced {
		return nil, false
	}

	return old, true
}

func (d *mutDict) Remove(key []byte) (Value, bool) {
	old, ok := d.m[string(key)]
	if !ok {
		return nil, false
	}

	delete(d.m, string(key))

	return old, true
}
