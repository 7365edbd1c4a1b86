package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type ErrorCategory string

const (
	CategoryNetwork  ErrorCategory = "NETWORK"  // Connection issues
	CategoryProtocol ErrorCategory = "PROTOCOL" // Peer broke the wire protocol
	CategoryDecode   ErrorCategory = "DECODE"   // Malformed bencode
	CategoryIO       ErrorCategory = "IO"       // File system issues
	CategoryContext  ErrorCategory = "CONTEXT"  // Context cancellation
	CategoryUnknown  ErrorCategory = "UNKNOWN"  // Unclassified errors
)

// Protocol identifies which layer produced an error.
type Protocol string

const (
	ProtocolPeerWire Protocol = "PEER"
	ProtocolKRPC     Protocol = "KRPC"
	ProtocolBencode  Protocol = "BENCODE"
	ProtocolGeneric  Protocol = "GENERIC"
)

// PeerError annotates an error with where it happened and whether the
// peer is worth another attempt.
type PeerError struct {
	Err       error
	Category  ErrorCategory
	Protocol  Protocol
	Retryable bool
	Timestamp time.Time
	// Addr is the remote address, file path or other resource involved.
	Addr    string
	Details map[string]any
}

func (e *PeerError) Error() string {
	if e.Protocol == ProtocolGeneric {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Addr, e.Err)
	}

	return fmt.Sprintf("[%s:%s] %s: %v", e.Protocol, e.Category, e.Addr, e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

var (
	ErrTimeout         = New("operation timed out")
	ErrConnectionReset = New("connection reset")
)

// NewNetworkError creates a network-related error
func NewNetworkError(err error, addr string, retryable bool) *PeerError {
	return &PeerError{
		Err:       err,
		Category:  CategoryNetwork,
		Protocol:  ProtocolGeneric,
		Retryable: retryable,
		Timestamp: time.Now(),
		Addr:      addr,
	}
}

// NewProtocolError marks err as a protocol violation by the remote side.
// Protocol violations are never retried.
func NewProtocolError(err error, protocol Protocol, addr string) *PeerError {
	return &PeerError{
		Err:       err,
		Category:  CategoryProtocol,
		Protocol:  protocol,
		Timestamp: time.Now(),
		Addr:      addr,
	}
}

// NewDecodeError wraps a bencode decoding failure.
func NewDecodeError(err error, addr string) *PeerError {
	return &PeerError{
		Err:       err,
		Category:  CategoryDecode,
		Protocol:  ProtocolBencode,
		Timestamp: time.Now(),
		Addr:      addr,
	}
}

// NewIOError creates an I/O related error
func NewIOError(err error, path string) *PeerError {
	return &PeerError{
		Err:       err,
		Category:  CategoryIO,
		Protocol:  ProtocolGeneric,
		Timestamp: time.Now(),
		Addr:      path,
	}
}

// NewContextError creates a context cancellation error
func NewContextError(err error, addr string) *PeerError {
	return &PeerError{
		Err:       err,
		Category:  CategoryContext,
		Protocol:  ProtocolGeneric,
		Timestamp: time.Now(),
		Addr:      addr,
	}
}

// Classify wraps err by inspecting its chain for context, network and
// stream errors. Anything it cannot place is CategoryUnknown; callers
// that know better use the specific constructors. An err that already
// carries a PeerError is returned as is.
func Classify(err error, addr string) *PeerError {
	if err == nil {
		return nil
	}

	var pe *PeerError
	if As(err, &pe) {
		return pe
	}

	if Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
		return NewContextError(err, addr)
	}

	var netErr net.Error
	if As(err, &netErr) && netErr.Timeout() {
		return NewNetworkError(fmt.Errorf("%w: %w", ErrTimeout, err), addr, true)
	}

	switch {
	case Is(err, syscall.ECONNRESET), Is(err, syscall.EPIPE):
		return NewNetworkError(fmt.Errorf("%w: %w", ErrConnectionReset, err), addr, true)
	case Is(err, syscall.ECONNREFUSED):
		return NewNetworkError(err, addr, false)
	case Is(err, io.EOF), Is(err, io.ErrUnexpectedEOF), Is(err, net.ErrClosed):
		return NewNetworkError(err, addr, true)
	}

	var opErr *net.OpError
	if As(err, &opErr) {
		return NewNetworkError(err, addr, true)
	}

	return &PeerError{
		Err:       err,
		Category:  CategoryUnknown,
		Protocol:  ProtocolGeneric,
		Timestamp: time.Now(),
		Addr:      addr,
	}
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pe *PeerError
	if As(err, &pe) {
		return pe.Retryable
	}

	return false
}

// IsFatal reports whether err means the peer must not be used again:
// protocol violations and undecodable input.
func IsFatal(err error) bool {
	return IsFatalCategory(CategoryOf(err))
}

// IsFatalCategory reports whether errors of category c end a connection
// without a retry.
func IsFatalCategory(c ErrorCategory) bool {
	return c == CategoryProtocol || c == CategoryDecode
}

// IsNetworkError determines if the error is network-related
func IsNetworkError(err error) bool {
	var pe *PeerError
	return As(err, &pe) && pe.Category == CategoryNetwork
}

// IsIOError determines if the error is I/O related
func IsIOError(err error) bool {
	var pe *PeerError
	return As(err, &pe) && pe.Category == CategoryIO
}

// IsProtocolError reports whether err is a protocol violation raised by
// the given protocol layer.
func IsProtocolError(err error, protocol Protocol) bool {
	var pe *PeerError
	return As(err, &pe) && pe.Category == CategoryProtocol && pe.Protocol == protocol
}

// CategoryOf returns the category of err, or CategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var pe *PeerError
	if As(err, &pe) {
		return pe.Category
	}

	return CategoryUnknown
}

// WithDetails adds additional context to a PeerError
func WithDetails(err error, details map[string]any) error {
	var pe *PeerError
	if !As(err, &pe) {
		return err
	}

	if pe.Details == nil {
		pe.Details = make(map[string]any)
	}

	for k, v := range details {
		pe.Details[k] = v
	}

	return pe
}
