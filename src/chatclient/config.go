package chatclient

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds configuration for the conversation stream client
type Config struct {
	BaseURL        string        // Base URL of the conversation backend
	APIKey         string        // Bearer token, optional
	StreamPath     string        // Path the turn is POSTed to
	ConnectTimeout time.Duration // Time allowed until response headers arrive
	Logger         *slog.Logger  // Logger for debugging
	HTTPClient     *http.Client  // Overrides the default client, mostly for tests
}
