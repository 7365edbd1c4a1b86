package peer

import (
	"github.com/NamanBalaji/bitwire/internal/errors"
	"github.com/NamanBalaji/bitwire/pkg/bencode"
)

var protocolErrors = []error{
	ErrUnknownMessageID,
	ErrFrameTooLarge,
	ErrMalformedMessage,
	ErrProtocolMismatch,
	ErrPeerIDMismatch,
	ErrInfoHashMismatch,
	ErrHandshakeRejected,
	ErrExtendedNotSupported,
	ErrInvalidExtendedHandshake,
	ErrUnknownExtension,
}

// ClassifyError categorizes an error from a connection to addr. Wire
// violations are protocol errors, bencode failures are decode errors and
// everything else is left to errors.Classify.
func ClassifyError(err error, addr string) *errors.PeerError {
	if err == nil {
		return nil
	}

	var pe *errors.PeerError
	if errors.As(err, &pe) {
		return pe
	}

	for _, target := range protocolErrors {
		if errors.Is(err, target) {
			return errors.NewProtocolError(err, errors.ProtocolPeerWire, addr)
		}
	}

	var syntaxErr *bencode.SyntaxError
	if errors.As(err, &syntaxErr) {
		return errors.NewDecodeError(err, addr)
	}

	return errors.Classify(err, addr)
}
