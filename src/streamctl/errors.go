package streamctl

import "errors"

var (
	// ErrAlreadyStreaming is returned by Send while a previous handle is still open.
	ErrAlreadyStreaming = errors.New("a response is already streaming")

	// ErrEmptyTurn is returned by Send for blank content.
	ErrEmptyTurn = errors.New("turn content is empty")

	// ErrRemote wraps errors reported by the backend through an error event.
	ErrRemote = errors.New("backend reported an error")
)
