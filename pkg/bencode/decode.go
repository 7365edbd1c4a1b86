package bencode

import "bytes"

// DefaultMaxDepth is the nesting limit applied when DecodeOptions.MaxDepth
// is zero.
const DefaultMaxDepth = 50

// DecodeOptions controls decoder strictness.
type DecodeOptions struct {
	// MaxDepth bounds how many lists and dictionaries may be nested.
	MaxDepth int
	// CheckKeySort requires every dictionary key to be strictly greater
	// than the previous one. Many clients send unsorted dictionaries, so
	// this is off by default.
	CheckKeySort bool
	// EnforceFullDecode rejects input that continues after the first value.
	EnforceFullDecode bool
}

// DefaultDecodeOptions returns the options used by Decode.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		MaxDepth:          DefaultMaxDepth,
		CheckKeySort:      false,
		EnforceFullDecode: true,
	}
}

// Decode parses data as exactly one bencode value using the default
// options. The returned tree borrows from data.
func Decode(data []byte) (*Ref, error) {
	return DecodeWithOptions(data, DefaultDecodeOptions())
}

// DecodeWithOptions parses data as one bencode value.
func DecodeWithOptions(data []byte, opts DecodeOptions) (*Ref, error) {
	v, n, err := DecodePrefix(data, opts)
	if err != nil {
		return nil, err
	}

	if opts.EnforceFullDecode && n != len(data) {
		return nil, &SyntaxError{Err: ErrTrailingBytes, Offset: n}
	}

	return v, nil
}

// DecodePrefix parses the first bencode value in data and returns it along
// with the number of bytes it occupied. Bytes after the value are left
// untouched; len(data)-n is the length of the remainder.
func DecodePrefix(data []byte, opts DecodeOptions) (*Ref, int, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	d := decoder{data: data, opts: opts}

	v := &Ref{}

	n, err := d.value(v, 0, 0)
	if err != nil {
		return nil, 0, err
	}

	return v, n, nil
}

type decoder struct {
	data []byte
	opts DecodeOptions
}

func (d *decoder) fail(err error, off int) error {
	return &SyntaxError{Err: err, Offset: off}
}

// value decodes the value starting at pos into out and returns the offset
// just past it. depth is the number of enclosing containers.
func (d *decoder) value(out *Ref, pos, depth int) (int, error) {
	if pos >= len(d.data) {
		return 0, d.fail(ErrUnexpectedEOF, len(d.data))
	}

	var (
		end int
		err error
	)

	switch c := d.data[pos]; {
	case c == 'i':
		end, err = d.integer(out, pos)
	case c == 'l':
		end, err = d.list(out, pos, depth)
	case c == 'd':
		end, err = d.dict(out, pos, depth)
	case c >= '0' && c <= '9':
		end, err = d.byteString(out, pos)
	default:
		return 0, d.fail(ErrInvalidByte, pos)
	}

	if err != nil {
		return 0, err
	}

	out.raw = d.data[pos:end]

	return end, nil
}

// integer parses i<digits>e. Leading zeros and negative zero are rejected.
func (d *decoder) integer(out *Ref, pos int) (int, error) {
	i := pos + 1
	neg := false

	if i < len(d.data) && d.data[i] == '-' {
		neg = true
		i++
	}

	digitsStart := i

	var (
		n        uint64
		overflow bool
	)

	limit := uint64(1<<63 - 1)
	if neg {
		limit = 1 << 63
	}

	for ; i < len(d.data) && d.data[i] != 'e'; i++ {
		c := d.data[i]
		if c < '0' || c > '9' {
			return 0, d.fail(ErrInvalidInteger, i)
		}

		digit := uint64(c - '0')
		if n > (limit-digit)/10 {
			overflow = true
		}
		n = n*10 + digit
	}

	if i >= len(d.data) {
		return 0, d.fail(ErrUnexpectedEOF, len(d.data))
	}

	digits := d.data[digitsStart:i]

	switch {
	case len(digits) == 0:
		return 0, d.fail(ErrInvalidInteger, digitsStart)
	case digits[0] == '0' && (len(digits) > 1 || neg):
		return 0, d.fail(ErrInvalidInteger, digitsStart)
	case overflow:
		return 0, d.fail(ErrInvalidInteger, digitsStart)
	}

	out.kind = KindInt
	if neg {
		out.num = -int64(n-1) - 1
	} else {
		out.num = int64(n)
	}

	return i + 1, nil
}

// byteString parses <len>:<bytes>. The payload is a subslice of the input.
func (d *decoder) byteString(out *Ref, pos int) (int, error) {
	b, end, err := d.rawString(pos)
	if err != nil {
		return 0, err
	}

	out.kind = KindBytes
	out.str = b

	return end, nil
}

func (d *decoder) rawString(pos int) ([]byte, int, error) {
	i := pos
	n := 0
	remaining := len(d.data) - pos

	for ; i < len(d.data) && d.data[i] != ':'; i++ {
		c := d.data[i]
		if c < '0' || c > '9' {
			return nil, 0, d.fail(ErrInvalidLength, i)
		}

		// Any length beyond what is left in the buffer is already an EOF,
		// so stop accumulating before it can overflow.
		if n <= remaining {
			n = n*10 + int(c-'0')
		}
	}

	if i >= len(d.data) {
		return nil, 0, d.fail(ErrUnexpectedEOF, len(d.data))
	}

	digits := d.data[pos:i]
	if len(digits) == 0 || (digits[0] == '0' && len(digits) > 1) {
		return nil, 0, d.fail(ErrInvalidLength, pos)
	}

	start := i + 1
	if n > len(d.data)-start {
		return nil, 0, d.fail(ErrUnexpectedEOF, len(d.data))
	}

	end := start + n

	return d.data[start:end:end], end, nil
}

func (d *decoder) list(out *Ref, pos, depth int) (int, error) {
	if depth >= d.opts.MaxDepth {
		return 0, d.fail(ErrRecursionLimit, pos)
	}

	items := refList{}
	i := pos + 1

	for {
		if i >= len(d.data) {
			return 0, d.fail(ErrUnexpectedEOF, len(d.data))
		}

		if d.data[i] == 'e' {
			break
		}

		var item Ref

		next, err := d.value(&item, i, depth+1)
		if err != nil {
			return 0, err
		}

		items = append(items, item)
		i = next
	}

	out.kind = KindList
	out.list = items

	return i + 1, nil
}

func (d *decoder) dict(out *Ref, pos, depth int) (int, error) {
	if depth >= d.opts.MaxDepth {
		return 0, d.fail(ErrRecursionLimit, pos)
	}

	dict := newRefDict()
	i := pos + 1

	var prev []byte

	for {
		if i >= len(d.data) {
			return 0, d.fail(ErrUnexpectedEOF, len(d.data))
		}

		if d.data[i] == 'e' {
			break
		}

		if c := d.data[i]; c < '0' || c > '9' {
			return 0, d.fail(ErrInvalidByte, i)
		}

		keyStart := i

		key, next, err := d.rawString(i)
		if err != nil {
			return 0, err
		}

		if d.opts.CheckKeySort && prev != nil && bytes.Compare(key, prev) <= 0 {
			return 0, &SyntaxError{Err: ErrKeysNotSorted, Offset: keyStart, Key: key}
		}

		var val Ref

		next, err = d.value(&val, next, depth+1)
		if err != nil {
			return 0, err
		}

		if !dict.add(key, val) {
			return 0, &SyntaxError{Err: ErrDuplicateKey, Offset: keyStart, Key: key}
		}

		prev = key
		i = next
	}

	out.kind = KindDict
	out.dict = dict

	return i + 1, nil
}
