package bencode

import (
	"errors"
	"fmt"
)

// Decoder errors. Every error returned by the decoder is a *SyntaxError
// wrapping one of these.
var (
	ErrInvalidByte    = errors.New("invalid byte")
	ErrInvalidInteger = errors.New("invalid integer")
	ErrInvalidLength  = errors.New("invalid byte string length")
	ErrUnexpectedEOF  = errors.New("unexpected end of input")
	ErrTrailingBytes  = errors.New("trailing bytes after value")
	ErrKeysNotSorted  = errors.New("dictionary keys not sorted")
	ErrDuplicateKey   = errors.New("duplicate dictionary key")
	ErrRecursionLimit = errors.New("recursion limit exceeded")
)

// Conversion errors returned by the Lookup helpers.
var (
	ErrMissingKey = errors.New("missing key")
	ErrWrongType  = errors.New("wrong type")
)

// SyntaxError records where in the input decoding failed.
type SyntaxError struct {
	Err    error  // one of the decoder sentinels
	Offset int    // byte offset at which the problem was detected
	Key    []byte // offending key for ordering and duplicate errors
}

func (e *SyntaxError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("bencode: %v at offset %d (key %q)", e.Err, e.Offset, e.Key)
	}

	return fmt.Sprintf("bencode: %v at offset %d", e.Err, e.Offset)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// ConvertError reports a failed typed lookup.
type ConvertError struct {
	Err  error
	Key  string
	Want Kind
}

func (e *ConvertError) Error() string {
	if errors.Is(e.Err, ErrWrongType) {
		return fmt.Sprintf("bencode: %v for key %q, want %s", e.Err, e.Key, e.Want)
	}

	return fmt.Sprintf("bencode: %v %q", e.Err, e.Key)
}

func (e *ConvertError) Unwrap() error {
	return e.Err
}
