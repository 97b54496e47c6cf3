// Package audiotransport carries microphone frames to the speech backend and
// speech recognition and playback events back, over one websocket per voice
// session.
package audiotransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const defaultConnectTimeout = 10 * time.Second

// Config controls the voice channel endpoint.
type Config struct {
	URL            string
	APIKey         string
	ConnectTimeout time.Duration
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

// Callbacks receive voice channel events. All of them except OnRecordingStop
// run on the session's read goroutine, in the order the server sent them.
// Nil callbacks are skipped.
type Callbacks struct {
	OnPartialTranscript func(text string)
	OnFinalTranscript   func(text string)
	OnRecordingStart    func()
	OnRecordingStop     func()
	OnAudioLevel        func(level int)
	OnSTTError          func(err error)

	// OnPlayback reports text-to-speech playback starting or ending for a session.
	OnPlayback func(sessionID string, playing bool)

	// OnPlaybackAudio receives PCM16 playback audio at the playback rate.
	OnPlaybackAudio func(pcm []byte)
}

// Client opens voice sessions.
type Client struct {
	config Config
	logger *slog.Logger
}

// NewClient creates a voice channel client.
func NewClient(config Config) *Client {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: config,
		logger: logger.With("component", "audio_transport"),
	}
}

// Open dials the voice channel and starts its read and write loops. Dial
// failures are returned as *TransportError wrapping ErrTransportConnect.
func (c *Client) Open(ctx context.Context, cb Callbacks) (*Session, error) {
	wsURL, err := websocketURL(c.config.URL)
	if err != nil {
		return nil, &TransportError{Op: "dial", URL: c.config.URL, Err: fmt.Errorf("%w: %w", ErrTransportConnect, err)}
	}

	headers := make(http.Header)
	if c.config.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	dialer := c.config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		c.logger.Warn("voice channel dial failed", "url", wsURL, "error", err)
		return nil, &TransportError{Op: "dial", URL: wsURL, Err: fmt.Errorf("%w: %w", ErrTransportConnect, err)}
	}

	c.logger.Debug("voice channel open", "url", wsURL)
	return newSession(conn, wsURL, cb, c.logger), nil
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", ErrInvalidURL
	}
	return u.String(), nil
}
