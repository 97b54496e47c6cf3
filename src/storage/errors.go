package storage

import "errors"

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database path is empty")
)
