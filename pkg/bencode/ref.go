package bencode

// Ref is a decoded bencode value that borrows from the input buffer. Byte
// strings, dictionary keys and Raw all alias the buffer passed to Decode,
// so a Ref must not outlive that buffer and the buffer must not be
// modified while the Ref is in use. Use Clone to detach a value.
type Ref struct {
	kind Kind
	raw  []byte
	num  int64
	str  []byte
	list refList
	dict *refDict
}

// Raw returns the exact input bytes this value was decoded from.
func (r *Ref) Raw() []byte { return r.raw }

func (r *Ref) Kind() Kind { return r.kind }

func (r *Ref) Int() (int64, bool) {
	if r.kind != KindInt {
		return 0, false
	}

	return r.num, true
}

func (r *Ref) Bytes() ([]byte, bool) {
	if r.kind != KindBytes {
		return nil, false
	}

	return r.str, true
}

func (r *Ref) Str() (string, bool) {
	if r.kind != KindBytes {
		return "", false
	}

	return bytesToStr(r.str)
}

func (r *Ref) List() (List, bool) {
	if r.kind != KindList {
		return nil, false
	}

	return r.list, true
}

func (r *Ref) Dict() (Dict, bool) {
	if r.kind != KindDict {
		return nil, false
	}

	return r.dict, true
}

type refList []Ref

func (l refList) Get(i int) (Value, bool) {
	if i < 0 || i >= len(l) {
		return nil, false
	}

	return &l[i], true
}

func (l refList) Len() int { return len(l) }

type refEntry struct {
	key []byte
	val Ref
}

// refDict keeps entries in wire order. The index makes lookups correct
// whether or not the peer sorted its keys.
type refDict struct {
	entries []refEntry
	index   map[string]int
}

func newRefDict() *refDict {
	return &refDict{index: make(map[string]int)}
}

// add appends an entry and reports false if the key is already present.
func (d *refDict) add(key []byte, v Ref) bool {
	if _, dup := d.index[string(key)]; dup {
		return false
	}

	d.index[string(key)] = len(d.entries)
	d.entries = append(d.entries, refEntry{key: key, val: v})

	return true
}

func (d *refDict) Lookup(key []byte) (Value, bool) {
	i, ok := d.index[string(key)]
	if !ok {
		return nil, false
	}

	return &d.entries[i].val, true
}

func (d *refDict) Len() int { return len(d.entries) }

func (d *refDict) Range(fn func(key []byte, v Value) bool) {
	for i := range d.entries {
		if !fn(d.entries[i].key, &d.entries[i].val) {
			return
		}
	}
}
