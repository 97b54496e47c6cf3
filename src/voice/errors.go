package voice

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a session that already ran.
	ErrAlreadyStarted = errors.New("voice session already started")

	// ErrNotStarted is returned by Stop before a successful Start.
	ErrNotStarted = errors.New("voice session not started")

	// ErrDisposed is returned by operations on a disposed session.
	ErrDisposed = errors.New("voice session disposed")

	// ErrNoSink means streaming mode was requested without a frame sink.
	ErrNoSink = errors.New("streaming mode requires a frame sink")
)
