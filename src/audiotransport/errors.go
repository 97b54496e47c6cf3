package audiotransport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportConnect means the voice channel could not be established.
	ErrTransportConnect = errors.New("voice transport connect failed")

	// ErrTransportClosed means the channel closed while the session was in use.
	ErrTransportClosed = errors.New("voice transport closed unexpectedly")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("voice session is closed")

	// ErrAlreadyRecording is returned by StartRecording during a recording.
	ErrAlreadyRecording = errors.New("already recording")

	// ErrNotRecording is returned by SendFrame outside a recording.
	ErrNotRecording = errors.New("not recording")

	// ErrInvalidURL means the voice endpoint is not an http(s) or ws(s) URL.
	ErrInvalidURL = errors.New("voice endpoint must use http(s) or ws(s)")
)

// TransportError describes a network failure of the voice channel.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("voice transport %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// STTError is a speech recognition failure reported by the server.
type STTError struct {
	Message string
}

func (e *STTError) Error() string {
	return "speech recognition failed: " + e.Message
}
