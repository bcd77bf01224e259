package chatclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by sends attempted while the session is not
	// connected. Nothing is queued.
	ErrNotConnected = errors.New("chatclient: not connected")

	// ErrHandshake is wrapped by transports when the server rejects or never
	// completes the session handshake.
	ErrHandshake = errors.New("chatclient: handshake failed")
)

// DecodeError reports an inbound frame that could not be decoded. The frame is
// dropped; the connection stays open.
type DecodeError struct {
	Destination string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame for %s: %v", e.Destination, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
