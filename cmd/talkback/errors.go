package main

import (
	"context"
	"errors"

	"github.com/elee1766/talkback/src/audio"
	"github.com/elee1766/talkback/src/audiotransport"
	"github.com/elee1766/talkback/src/chatclient"
	"github.com/elee1766/talkback/src/config"
	"github.com/elee1766/talkback/src/storage"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error
	ExitUsage       = 2 // Usage error
	ExitConfig      = 3 // Configuration error
	ExitAuth        = 4 // Authentication error
	ExitPermission  = 5 // Permission error
	ExitNetwork     = 6 // Network error
	ExitTimeout     = 7 // Timeout error
	ExitInterrupted = 8 // Interrupted by user
)

// exitCode determines the appropriate exit code for an error
func exitCode(err error) int {
	var (
		validationErr config.ValidationError
		apiErr        *chatclient.APIError
		transportErr  *audiotransport.TransportError
	)

	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.As(err, &validationErr), errors.Is(err, config.ErrConfigExists), errors.Is(err, storage.ErrNoPath):
		return ExitConfig
	case errors.As(err, &apiErr) && apiErr.IsAuthError():
		return ExitAuth
	case errors.Is(err, audio.ErrPermissionDenied):
		return ExitPermission
	case errors.Is(err, chatclient.ErrConnect), errors.As(err, &transportErr):
		return ExitNetwork
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, errUsage):
		return ExitUsage
	default:
		return ExitError
	}
}

// errUsage marks invalid command input.
var errUsage = errors.New("invalid usage")
