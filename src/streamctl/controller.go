// Package streamctl owns the primary conversation channel: it sends one user
// turn at a time and exposes the response as an ordered event stream with
// best-effort cancellation.
package streamctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/elee1766/talkback/src/wire"
	"github.com/google/uuid"
)

const defaultEventBuffer = 64

// Transport opens one response stream for a turn.
type Transport interface {
	Open(ctx context.Context, turn wire.OutboundTurn) (wire.EventReader, error)
}

// Turn is the user input for one exchange.
type Turn struct {
	Content      string
	ToolsEnabled bool
	SessionID    string
}

// Controller allows at most one active handle at a time.
type Controller struct {
	transport Transport
	logger    *slog.Logger

	mu         sync.Mutex
	active     *Handle
	generation uint64
}

// New creates a controller over transport.
func New(transport Transport, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		transport: transport,
		logger:    logger.With("component", "stream_controller"),
	}
}

// Send opens a response stream for turn. It fails with ErrAlreadyStreaming
// while a previous handle is open. Transport failures are not returned here;
// they arrive as the handle's single error event.
func (c *Controller) Send(ctx context.Context, turn Turn) (*Handle, error) {
	if strings.TrimSpace(turn.Content) == "" {
		return nil, ErrEmptyTurn
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyStreaming
	}
	c.generation++
	streamCtx, cancel := context.WithCancel(ctx)
	h := newHandle(c, uuid.NewString(), c.generation, cancel, defaultEventBuffer)
	c.active = h
	c.mu.Unlock()

	c.logger.Debug("stream opened", "handle_id", h.ID, "generation", h.Generation, "enable_tools", turn.ToolsEnabled)

	go c.pump(streamCtx, h, wire.NewTurn(turn.Content, turn.ToolsEnabled, turn.SessionID))
	return h, nil
}

// Cancel closes h and suppresses any further dispatch from it. It is a no-op
// when h already finished or was cancelled before.
//
// Cancellation is best effort: the request context is cancelled and the
// response body closed, but the backend may already have produced bytes that
// are read and discarded.
func (c *Controller) Cancel(h *Handle) {
	if h == nil {
		return
	}
	if !h.finish(OutcomeCancelled, nil) {
		return
	}
	c.release(h)
	h.cancel()
	h.closeReader()
	c.logger.Debug("stream cancelled", "handle_id", h.ID, "generation", h.Generation)
}

// Active returns the open handle, or nil.
func (c *Controller) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Streaming reports whether a handle is open.
func (c *Controller) Streaming() bool {
	return c.Active() != nil
}

func (c *Controller) release(h *Handle) {
	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Controller) pump(ctx context.Context, h *Handle, turn wire.OutboundTurn) {
	logger := c.logger.With("handle_id", h.ID, "generation", h.Generation)
	defer func() {
		h.closeReader()
		h.cancel()
		close(h.events)
		close(h.done)
	}()

	reader, err := c.transport.Open(ctx, turn)
	if err != nil {
		c.fail(h, logger, fmt.Errorf("open stream: %w", err))
		return
	}
	if !h.attach(reader) {
		return
	}

	for {
		ev, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = &wire.ProtocolError{Reason: "stream ended before done", Err: wire.ErrUnexpectedEOF}
			}
			c.fail(h, logger, err)
			return
		}

		switch ev.Kind {
		case wire.EventDone:
			c.terminate(h, ev, OutcomeDone, nil)
			logger.Debug("stream done")
			return
		case wire.EventError:
			logger.Warn("backend reported stream error", "message", ev.Message)
			c.terminate(h, ev, OutcomeError, fmt.Errorf("%w: %s", ErrRemote, ev.Message))
			return
		}

		if h.Closed() {
			return
		}
		select {
		case h.events <- ev:
		case <-ctx.Done():
			c.fail(h, logger, ctx.Err())
			return
		}
	}
}

// fail terminates h with err unless it was cancelled, in which case the
// error is the expected fallout of closing the reader.
func (c *Controller) fail(h *Handle, logger *slog.Logger, err error) {
	if h.Outcome() == OutcomeCancelled {
		logger.Debug("stream closed after cancel", "error", err)
		return
	}
	if errors.Is(err, wire.ErrProtocol) {
		logger.Warn("protocol error, terminating stream", "error", err)
	} else {
		logger.Error("stream failed", "error", err)
	}
	c.terminate(h, wire.Failure(err), OutcomeError, err)
}

// terminate releases the active slot before the terminal event is delivered
// so a consumer reacting to it may Send again.
func (c *Controller) terminate(h *Handle, ev wire.StreamEvent, outcome Outcome, err error) {
	if !h.finish(outcome, err) {
		return
	}
	c.release(h)
	h.closeReader()
	h.events <- ev
}
