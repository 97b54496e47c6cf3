package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol matches every *ProtocolError.
	ErrProtocol = errors.New("protocol error")

	// ErrUnexpectedEOF means the stream ended before a done or error event.
	ErrUnexpectedEOF = errors.New("stream ended before done")
)

// ProtocolError is a malformed or unexpected inbound message.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func protocolErr(reason string, err error) error {
	return &ProtocolError{Reason: reason, Err: err}
}
