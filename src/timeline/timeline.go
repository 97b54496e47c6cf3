// Package timeline folds tool lifecycle events into a bounded ledger of tool
// runs ready for display.
package timeline

import (
	"sync"
	"time"

	"github.com/elee1766/talkback/src/wire"
)

// DefaultLimit is the number of runs kept when no limit is configured.
const DefaultLimit = 20

// UnknownTool names runs created by an event that was not preceded by a start.
const UnknownTool = "unknown"

// Kind is the lifecycle step an event represents.
type Kind string

const (
	KindStart  Kind = "start"
	KindUpdate Kind = "update"
	KindEnd    Kind = "end"
)

// Status is the state of a run. It only ever moves from running to one
// terminal value.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusCached  Status = "cached"
)

// Terminal reports whether the run has completed.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Event is one tool lifecycle event.
type Event struct {
	Kind   Kind
	ID     string
	Tool   string
	Server string
	Args   string
	Status wire.ToolStatus
	At     time.Time
}

// Update is one progress report of a run, kept in arrival order.
type Update struct {
	ID     string
	Status wire.ToolStatus
	At     time.Time
}

// Run aggregates the events of one tool call.
type Run struct {
	ID          string
	Tool        string
	Server      string
	Args        string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
	LatencyMs   *int64
	Updates     []Update
}

// FromWire converts a decoded stream event. ok is false for non-tool events.
func FromWire(ev wire.StreamEvent) (Event, bool) {
	if ev.Tool == nil {
		return Event{}, false
	}
	var kind Kind
	switch ev.Kind {
	case wire.EventToolStart:
		kind = KindStart
	case wire.EventToolUpdate:
		kind = KindUpdate
	case wire.EventToolEnd:
		kind = KindEnd
	default:
		return Event{}, false
	}
	return Event{
		Kind:   kind,
		ID:     ev.Tool.ID,
		Tool:   ev.Tool.Tool,
		Server: ev.Tool.Server,
		Args:   ev.Tool.Args,
		Status: ev.Tool.Status,
		At:     ev.Tool.At,
	}, true
}

// Apply folds ev into runs and returns the new ledger in creation order. It
// never modifies runs or any Run in it. When the ledger grows past limit the
// oldest completed runs are evicted; running runs are kept even if that
// leaves the ledger over the bound.
func Apply(runs []Run, ev Event, limit int) []Run {
	if limit <= 0 {
		limit = DefaultLimit
	}

	out := make([]Run, len(runs), len(runs)+1)
	copy(out, runs)

	idx := indexOf(out, ev.ID)
	if idx < 0 {
		out = append(out, newRun(ev))
		idx = len(out) - 1
	} else if ev.Kind == KindStart {
		// first event wins for creation
		return out
	}

	run := out[idx]
	switch ev.Kind {
	case KindUpdate:
		run.Updates = append(append([]Update(nil), run.Updates...), Update{ID: ev.ID, Status: ev.Status, At: ev.At})
	case KindEnd:
		if run.Status.Terminal() {
			return evict(out, limit)
		}
		run.Status = terminalStatus(ev.Status)
		completed := ev.At
		if completed.Before(run.StartedAt) {
			completed = run.StartedAt
		}
		latency := completed.Sub(run.StartedAt).Milliseconds()
		run.CompletedAt = &completed
		run.LatencyMs = &latency
	}
	out[idx] = run

	return evict(out, limit)
}

// Display returns runs most recent first without touching the input.
func Display(runs []Run) []Run {
	out := make([]Run, len(runs))
	for i, r := range runs {
		out[len(runs)-1-i] = r
	}
	return out
}

func newRun(ev Event) Run {
	tool := ev.Tool
	if tool == "" {
		tool = UnknownTool
	}
	return Run{
		ID:        ev.ID,
		Tool:      tool,
		Server:    ev.Server,
		Args:      ev.Args,
		Status:    StatusRunning,
		StartedAt: ev.At,
	}
}

func terminalStatus(s wire.ToolStatus) Status {
	switch s {
	case wire.ToolStatusError:
		return StatusError
	case wire.ToolStatusCached:
		return StatusCached
	default:
		return StatusSuccess
	}
}

func indexOf(runs []Run, id string) int {
	for i := range runs {
		if runs[i].ID == id {
			return i
		}
	}
	return -1
}

func evict(runs []Run, limit int) []Run {
	for len(runs) > limit {
		oldest := -1
		for i := range runs {
			if runs[i].Status.Terminal() {
				oldest = i
				break
			}
		}
		if oldest < 0 {
			break
		}
		runs = append(runs[:oldest:oldest], runs[oldest+1:]...)
	}
	return runs
}

// Timeline is a concurrency-safe ledger built with Apply.
type Timeline struct {
	mu    sync.Mutex
	runs  []Run
	limit int
	now   func() time.Time
}

// New returns an empty timeline bounded to limit runs (DefaultLimit if <= 0).
func New(limit int) *Timeline {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Timeline{limit: limit, now: time.Now}
}

// Apply folds one event. Events without a timestamp are stamped with the
// current time. It returns the run the event touched, if it is still held.
func (t *Timeline) Apply(ev Event) (Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = t.now()
	}
	t.runs = Apply(t.runs, ev, t.limit)
	if i := indexOf(t.runs, ev.ID); i >= 0 {
		return cloneRun(t.runs[i]), true
	}
	return Run{}, false
}

// Runs returns a copy of the ledger in creation order.
func (t *Timeline) Runs() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneRuns(t.runs)
}

// Display returns a copy of the ledger most recent first.
func (t *Timeline) Display() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Display(cloneRuns(t.runs))
}

// EndRunning fails every run still running, as if each had received an
// error end event now. It returns the runs it ended, including any the
// bound then evicts.
func (t *Timeline) EndRunning() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := t.now()
	var ended []Run
	for i := range t.runs {
		if t.runs[i].Status.Terminal() {
			continue
		}
		// a bound of the current length keeps indexes stable until all are ended
		t.runs = Apply(t.runs, Event{Kind: KindEnd, ID: t.runs[i].ID, Status: wire.ToolStatusError, At: at}, len(t.runs))
		ended = append(ended, cloneRun(t.runs[i]))
	}
	t.runs = evict(t.runs, t.limit)
	return ended
}

// Reset drops every run.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs = nil
}

func cloneRuns(runs []Run) []Run {
	if runs == nil {
		return nil
	}
	out := make([]Run, len(runs))
	for i, r := range runs {
		out[i] = cloneRun(r)
	}
	return out
}

func cloneRun(r Run) Run {
	r.Updates = append([]Update(nil), r.Updates...)
	if r.CompletedAt != nil {
		c := *r.CompletedAt
		r.CompletedAt = &c
	}
	if r.LatencyMs != nil {
		l := *r.LatencyMs
		r.LatencyMs = &l
	}
	return r
}
