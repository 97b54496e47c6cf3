package chatclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error variables
var (
	// ErrNoBaseURL indicates the backend URL is missing
	ErrNoBaseURL = errors.New("conversation backend URL is required")

	// ErrConnect indicates the request never produced a response
	ErrConnect = errors.New("connection to conversation backend failed")

	// ErrNotEventStream indicates the response is not text/event-stream
	ErrNotEventStream = errors.New("response is not an event stream")

	// ErrStreamClosed indicates the stream has been closed
	ErrStreamClosed = errors.New("stream closed")
)

// ErrorResponse is the error body returned by the backend: {"error":{"message":"...","code":"..."}}
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// APIError represents a non-2xx response from the conversation backend.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimit returns true if this is a rate limit error.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden || e.Code == "invalid_api_key"
}
