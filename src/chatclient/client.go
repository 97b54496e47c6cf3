// Package chatclient sends user turns to the conversation backend and reads
// the response as a server-sent event stream.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elee1766/talkback/src/wire"
)

const (
	defaultStreamPath     = "/chat/stream"
	defaultConnectTimeout = 30 * time.Second
)

// Client is the conversation stream client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new conversation stream client.
func NewClient(config Config) *Client {
	if config.StreamPath == "" {
		config.StreamPath = defaultStreamPath
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		// No overall timeout: a response stream lives as long as the turn does.
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = config.ConnectTimeout
		httpClient = &http.Client{Transport: transport}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chat_client")

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Open posts one turn and returns a reader over the response events.
// Cancelling ctx aborts the request and unblocks a pending Next.
func (c *Client) Open(ctx context.Context, turn wire.OutboundTurn) (wire.EventReader, error) {
	if c.config.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	logger := c.logger.With("method", "Open", "session_id", turn.SessionID)
	logger.Debug("sending turn", "content_length", len(turn.Content), "enable_tools", turn.EnableTools)

	body, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.config.StreamPath, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("request failed", "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		logger.Warn("received error response", "status_code", resp.StatusCode)
		return nil, c.handleError(resp)
	}

	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %q", ErrNotEventStream, resp.Header.Get("Content-Type"))
	}

	return &Stream{
		body:   resp.Body,
		sse:    newSSEReader(resp.Body),
		logger: logger,
	}, nil
}

// newRequest creates a new HTTP request with the appropriate headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	return req, nil
}

// handleError processes error responses from the backend.
func (c *Client) handleError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read error response: %w", err)
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	apiErr.Message = errResp.Error.Message
	apiErr.Code = errResp.Error.Code
	return apiErr
}

// Stream reads decoded events from one response body.
type Stream struct {
	body   io.ReadCloser
	sse    *sseReader
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// Next returns the next event. It returns io.EOF when the body ends and a
// *wire.ProtocolError when an event cannot be decoded.
func (s *Stream) Next() (wire.StreamEvent, error) {
	ev, err := s.sse.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return wire.StreamEvent{}, io.EOF
		}
		if s.isClosed() {
			return wire.StreamEvent{}, ErrStreamClosed
		}
		return wire.StreamEvent{}, fmt.Errorf("failed to read stream: %w", err)
	}

	decoded, err := wire.DecodeStreamEvent(ev.Event, []byte(ev.Data))
	if err != nil {
		s.logger.Warn("malformed stream event", "event", ev.Event, "error", err)
		return wire.StreamEvent{}, err
	}
	return decoded, nil
}

// Close releases the response body. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.body.Close()
	})
	return err
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
