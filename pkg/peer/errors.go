package peer

import "errors"

// Protocol violations. Each one is fatal to the connection that produced
// it and never to the process.
var (
	ErrUnknownMessageID = errors.New("unknown message id")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum message length")
	ErrMalformedMessage = errors.New("malformed message body")
	ErrProtocolMismatch = errors.New("wrong protocol identifier")
	ErrPeerIDMismatch   = errors.New("peer id mismatch")
	ErrInfoHashMismatch = errors.New("info hash mismatch")
)

// State machine and negotiation errors.
var (
	ErrHandshakeRejected        = errors.New("handshake rejected")
	ErrInvalidState             = errors.New("operation not valid in current state")
	ErrExtendedNotSupported     = errors.New("peer does not support the extension protocol")
	ErrInvalidExtendedHandshake = errors.New("invalid extended handshake")
	ErrUnknownExtension         = errors.New("extension not negotiated")
	ErrConnClosed               = errors.New("connection closed")
)
