package streamctl

import (
	"context"
	"sync"

	"github.com/elee1766/talkback/src/wire"
)

// Outcome is the lifecycle state of a handle.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeDone      Outcome = "done"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Handle is one outstanding request/response exchange.
//
// Events arrive on Events() in the order the backend produced them and end
// with exactly one done or error event, unless the handle is cancelled, in
// which case the channel is closed without a terminal event. Consumers must
// drain Events until it is closed.
type Handle struct {
	ID         string
	Generation uint64

	events chan wire.StreamEvent
	done   chan struct{}
	cancel context.CancelFunc
	ctl    *Controller

	mu      sync.Mutex
	outcome Outcome
	err     error
	reader  wire.EventReader
}

func newHandle(ctl *Controller, id string, generation uint64, cancel context.CancelFunc, buffer int) *Handle {
	return &Handle{
		ID:         id,
		Generation: generation,
		events:     make(chan wire.StreamEvent, buffer),
		done:       make(chan struct{}),
		cancel:     cancel,
		ctl:        ctl,
		outcome:    OutcomeRunning,
	}
}

// Events returns the ordered event channel. It is closed when the stream ends.
func (h *Handle) Events() <-chan wire.StreamEvent {
	return h.events
}

// Done is closed once the handle has released its transport.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Closed reports whether the handle reached a terminal state.
func (h *Handle) Closed() bool {
	return h.Outcome() != OutcomeRunning
}

// Outcome returns the current lifecycle state.
func (h *Handle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Err returns the error that terminated the stream, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Cancel is shorthand for the owning controller's Cancel.
func (h *Handle) Cancel() {
	h.ctl.Cancel(h)
}

// finish moves a running handle to a terminal outcome. It reports false if
// the handle already left the running state.
func (h *Handle) finish(outcome Outcome, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outcome != OutcomeRunning {
		return false
	}
	h.outcome = outcome
	h.err = err
	return true
}

// attach records the open reader, or closes it at once if the handle was
// cancelled while the transport was connecting.
func (h *Handle) attach(r wire.EventReader) bool {
	h.mu.Lock()
	if h.outcome == OutcomeCancelled {
		h.mu.Unlock()
		r.Close()
		return false
	}
	h.reader = r
	h.mu.Unlock()
	return true
}

func (h *Handle) closeReader() {
	h.mu.Lock()
	r := h.reader
	h.reader = nil
	h.mu.Unlock()
	if r != nil {
		r.Close()
	}
}
