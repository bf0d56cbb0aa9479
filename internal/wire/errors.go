package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a message header or argument cannot be
	// decoded.
	ErrMalformed = errors.New("wire: malformed message")

	// ErrMissingFD is returned when a message references a file descriptor
	// that was not received.
	ErrMissingFD = errors.New("wire: missing file descriptor")

	// ErrTooLarge is returned when an outgoing message exceeds MaxMessageSize.
	ErrTooLarge = errors.New("wire: message too large")
)

// ProtocolError is a violation committed by the peer. The broker reports it
// with a display error event and terminates the connection.
type ProtocolError struct {
	Object  uint32
	Code    uint32
	Message string
}

// Errorf builds a ProtocolError for object with the given code.
func Errorf(object, code uint32, format string, args ...any) *ProtocolError {
	return &ProtocolError{Object: object, Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol error on object %d (code %d): %s", e.Object, e.Code, e.Message)
}
