package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/elee1766/talkback/src/streamctl"
	"github.com/elee1766/talkback/src/timeline"
	"github.com/elee1766/talkback/src/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// chanReader yields events pushed by the test until it is closed.
type chanReader struct {
	events    chan wire.StreamEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanReader() *chanReader {
	return &chanReader{events: make(chan wire.StreamEvent, 16), closed: make(chan struct{})}
}

func (r *chanReader) Next() (wire.StreamEvent, error) {
	select {
	case ev, ok := <-r.events:
		if !ok {
			return wire.StreamEvent{}, io.EOF
		}
		return ev, nil
	case <-r.closed:
		return wire.StreamEvent{}, errors.New("reader closed")
	}
}

func (r *chanReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

type chanTransport struct {
	mu      sync.Mutex
	turns   []wire.OutboundTurn
	openErr error
	opened  chan *chanReader
}

func newChanTransport() *chanTransport {
	return &chanTransport{opened: make(chan *chanReader, 8)}
}

func (t *chanTransport) Open(_ context.Context, turn wire.OutboundTurn) (wire.EventReader, error) {
	t.mu.Lock()
	t.turns = append(t.turns, turn)
	t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	r := newChanReader()
	t.opened <- r
	return r, nil
}

func (t *chanTransport) sent() []wire.OutboundTurn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]wire.OutboundTurn(nil), t.turns...)
}

func (t *chanTransport) next(tb testing.TB) *chanReader {
	tb.Helper()
	select {
	case r := <-t.opened:
		return r
	case <-time.After(waitTimeout):
		tb.Fatal("stream was not opened")
		return nil
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []ViewEvent
}

func (l *eventLog) Process(ev ViewEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) Close() error { return nil }

func (l *eventLog) all() []ViewEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ViewEvent(nil), l.events...)
}

func (l *eventLog) types() []EventType {
	var out []EventType
	for _, ev := range l.all() {
		out = append(out, ev.GetType())
	}
	return out
}

func (l *eventLog) count(t EventType) int {
	n := 0
	for _, ev := range l.all() {
		if ev.GetType() == t {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]string
	messages map[string][]Message
	runs     []timeline.Run
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]string{}, messages: map[string][]Message{}}
}

func (s *fakeStore) EnsureSession(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = title
	}
	return s.err
}

func (s *fakeStore) SaveMessage(_ context.Context, id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages[id] = append(s.messages[id], msg)
	return nil
}

func (s *fakeStore) SaveToolRun(_ context.Context, _ string, run timeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return s.err
}

func (s *fakeStore) LoadMessages(_ context.Context, id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[id]...), s.err
}

func (s *fakeStore) saved(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[id]...)
}

type harness struct {
	m         *Machine
	transport *chanTransport
	log       *eventLog
	sink      *ChannelEventSink
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{transport: newChanTransport(), log: &eventLog{}}
	h.sink = NewChannelEventSink(256, nil, h.log)
	opts.Stream = streamctl.New(h.transport, nil)
	opts.Sink = h.sink
	h.m = New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = h.m.Close(ctx)
		_ = h.sink.Close()
	})
	return h
}

func (h *harness) waitPhase(t *testing.T, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.Phase() == phase }, waitTimeout, 5*time.Millisecond,
		"phase never became %s", phase)
}

func toolEvent(kind wire.EventKind, id, tool string, status wire.ToolStatus) wire.StreamEvent {
	return wire.StreamEvent{Kind: kind, Tool: &wire.ToolEvent{ID: id, Tool: tool, Status: status}}
}

func TestSimpleExchange(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	require.NoError(t, h.m.Send(ctx, "2+2?"))
	assert.Equal(t, PhaseStreaming, h.m.Phase())

	r := h.transport.next(t)
	r.events <- wire.Token("4")
	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)

	snap := h.m.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "2+2?", snap.Messages[0].Content)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, "4", snap.Messages[1].Content)
	assert.False(t, snap.Messages[1].Streaming)
	assert.False(t, snap.Streaming)

	turns := h.transport.sent()
	require.Len(t, turns, 1)
	assert.Equal(t, "message", turns[0].Type)
	assert.Equal(t, snap.SessionID, turns[0].SessionID)
}

func TestTokensRenderInDeliveryOrderAroundTools(t *testing.T) {
	h := newHarness(t, Options{ToolsEnabled: true})
	require.NoError(t, h.m.Send(context.Background(), "look it up"))

	r := h.transport.next(t)
	r.events <- wire.Token("Hel")
	r.events <- wire.Token("lo")
	r.events <- toolEvent(wire.EventToolStart, "a", "search", wire.ToolStatusStart)
	r.events <- wire.Token(" world")
	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)

	snap := h.m.Snapshot()
	assert.Equal(t, "Hello world", snap.Messages[1].Content)
	assert.Equal(t, "search", snap.Messages[1].ToolCallName)
	assert.True(t, h.transport.sent()[0].EnableTools)

	require.Eventually(t, func() bool { return h.log.count(EventAssistantEnd) == 1 }, waitTimeout, 5*time.Millisecond)
	var order []string
	for _, ev := range h.log.all() {
		switch e := ev.(type) {
		case *AssistantChunkEvent:
			order = append(order, e.Content)
		case *ToolRunEvent:
			order = append(order, "tool:"+e.Run.ID)
		}
	}
	// the run never ended, so the finished stream closes it
	assert.Equal(t, []string{"Hel", "lo", "tool:a", " world", "tool:a"}, order)
}

func TestToolTimelineScenario(t *testing.T) {
	store := newFakeStore()
	h := newHarness(t, Options{ToolsEnabled: true, Store: store})
	require.NoError(t, h.m.Send(context.Background(), "search please"))

	r := h.transport.next(t)
	r.events <- toolEvent(wire.EventToolStart, "a", "search", wire.ToolStatusStart)
	r.events <- toolEvent(wire.EventToolUpdate, "a", "", wire.ToolStatusOK)
	r.events <- toolEvent(wire.EventToolEnd, "a", "", wire.ToolStatusSuccess)
	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)

	snap := h.m.Snapshot()
	require.Len(t, snap.Tools, 1)
	run := snap.Tools[0]
	assert.Equal(t, "search", run.Tool)
	assert.Equal(t, timeline.StatusSuccess, run.Status)
	assert.Len(t, run.Updates, 1)

	require.Eventually(t, func() bool { return len(store.saved(snap.SessionID)) == 2 }, waitTimeout, 5*time.Millisecond)
	saved := store.saved(snap.SessionID)
	assert.Equal(t, RoleUser, saved[0].Role)
	assert.Equal(t, RoleAssistant, saved[1].Role)
	assert.False(t, saved[1].Streaming)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.runs, 1)
	assert.Equal(t, "a", store.runs[0].ID)
	assert.Equal(t, "search please", store.sessions[snap.SessionID])
}

func TestSingleFlight(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	require.NoError(t, h.m.Send(ctx, "first"))
	r := h.transport.next(t)

	err := h.m.Send(ctx, "second")
	assert.ErrorIs(t, err, ErrStreamActive)
	snap := h.m.Snapshot()
	assert.NotEmpty(t, snap.Notice)
	assert.Equal(t, PhaseStreaming, snap.Phase)
	assert.Len(t, snap.Messages, 2)

	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)

	require.NoError(t, h.m.Send(ctx, "third"))
	h.transport.next(t)
	assert.Len(t, h.m.Snapshot().Messages, 4)

	h.m.Cancel()
	require.NoError(t, h.m.Send(ctx, "fourth"))
}

func TestEmptyMessageRejected(t *testing.T) {
	h := newHarness(t, Options{})
	assert.ErrorIs(t, h.m.Send(context.Background(), "  "), ErrEmptyMessage)
	assert.Empty(t, h.m.Snapshot().Messages)
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Send(context.Background(), "tell me a story"))
	r := h.transport.next(t)
	r.events <- wire.Token("Once")
	require.Eventually(t, func() bool { return h.m.Snapshot().Messages[1].Content == "Once" }, waitTimeout, 5*time.Millisecond)

	h.m.Cancel()
	h.m.Cancel()

	snap := h.m.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.Messages[1].Streaming)
	assert.Equal(t, "Once", snap.Messages[1].Content)
	assert.Empty(t, snap.LastError)

	require.Eventually(t, func() bool { return h.log.count(EventAssistantEnd) == 1 }, waitTimeout, 5*time.Millisecond)
	before := len(h.log.all())
	h.m.Cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.log.all(), before)
	assert.Zero(t, h.log.count(EventError))
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Send(context.Background(), "hi"))
	r := h.transport.next(t)
	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)
	require.Eventually(t, func() bool { return h.log.count(EventAssistantEnd) == 1 }, waitTimeout, 5*time.Millisecond)

	before := h.m.Snapshot()
	n := len(h.log.all())
	h.m.Cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, h.m.Snapshot())
	assert.Len(t, h.log.all(), n)
}

func TestStreamErrorSurfacesAndReturnsToIdle(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Send(context.Background(), "hi"))
	r := h.transport.next(t)
	r.events <- wire.Token("partial")
	r.events <- wire.StreamEvent{Kind: wire.EventError, Message: "model overloaded"}
	h.waitPhase(t, PhaseIdle)

	snap := h.m.Snapshot()
	assert.Equal(t, "model overloaded", snap.LastError)
	assert.False(t, snap.Messages[1].Streaming)
	assert.Equal(t, "partial", snap.Messages[1].Content)

	require.Eventually(t, func() bool { return h.log.count(EventError) == 1 }, waitTimeout, 5*time.Millisecond)
	var phases []Phase
	for _, ev := range h.log.all() {
		if p, ok := ev.(*PhaseEvent); ok {
			phases = append(phases, p.To)
		}
	}
	assert.Equal(t, []Phase{PhaseStreaming, PhaseError, PhaseIdle}, phases)
}

func TestTransportFailureIsOneError(t *testing.T) {
	h := newHarness(t, Options{})
	h.transport.openErr = errors.New("connection refused")

	require.NoError(t, h.m.Send(context.Background(), "hi"))
	h.waitPhase(t, PhaseIdle)

	require.Eventually(t, func() bool { return h.log.count(EventError) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Contains(t, h.m.Snapshot().LastError, "connection refused")
}

func TestTruncatedStreamIsAnError(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Send(context.Background(), "hi"))
	r := h.transport.next(t)
	r.events <- wire.Token("cut")
	close(r.events)
	h.waitPhase(t, PhaseIdle)

	assert.Contains(t, h.m.Snapshot().LastError, wire.ErrUnexpectedEOF.Error())
}

func TestOpenToolRunsEndWithTheStream(t *testing.T) {
	store := newFakeStore()
	h := newHarness(t, Options{ToolsEnabled: true, ToolHistoryLimit: 20, Store: store})
	ctx := context.Background()

	for i := range 25 {
		require.NoError(t, h.m.Send(ctx, fmt.Sprintf("turn %d", i)))
		r := h.transport.next(t)
		r.events <- toolEvent(wire.EventToolStart, fmt.Sprintf("run-%d", i), "search", wire.ToolStatusStart)
		if i%2 == 0 {
			r.events <- wire.Done()
		} else {
			r.events <- wire.Failure(errors.New("connection reset"))
		}
		h.waitPhase(t, PhaseIdle)
	}

	snap := h.m.Snapshot()
	require.Len(t, snap.ToolLedger, 20)
	assert.Equal(t, "run-5", snap.ToolLedger[0].ID)
	for _, run := range snap.ToolLedger {
		assert.Equal(t, timeline.StatusError, run.Status, run.ID)
		assert.NotNil(t, run.CompletedAt)
	}

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.runs) == 25
	}, waitTimeout, 5*time.Millisecond)
}

func TestCancelEndsOpenToolRuns(t *testing.T) {
	h := newHarness(t, Options{ToolsEnabled: true})
	require.NoError(t, h.m.Send(context.Background(), "search"))
	r := h.transport.next(t)
	r.events <- toolEvent(wire.EventToolStart, "a", "search", wire.ToolStatusStart)
	require.Eventually(t, func() bool { return len(h.m.Snapshot().Tools) == 1 }, waitTimeout, 5*time.Millisecond)

	h.m.Cancel()

	snap := h.m.Snapshot()
	require.Len(t, snap.Tools, 1)
	assert.Equal(t, timeline.StatusError, snap.Tools[0].Status)
	assert.Equal(t, PhaseIdle, snap.Phase)

	require.Eventually(t, func() bool { return h.log.count(EventToolRun) == 2 }, waitTimeout, 5*time.Millisecond)
	assert.Zero(t, h.log.count(EventError))
}

func TestStartNewSessionAndClearStreamData(t *testing.T) {
	h := newHarness(t, Options{ToolsEnabled: true})
	ctx := context.Background()
	first := h.m.SessionID()

	require.NoError(t, h.m.Send(ctx, "hi"))
	r := h.transport.next(t)
	r.events <- toolEvent(wire.EventToolStart, "a", "search", wire.ToolStatusStart)
	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)

	h.m.ClearStreamData()
	snap := h.m.Snapshot()
	assert.Empty(t, snap.Tools)
	assert.Len(t, snap.Messages, 2)

	h.m.SetInput("draft")
	assert.Equal(t, "draft", h.m.Snapshot().Input)

	id := h.m.StartNewSession(ctx)
	assert.NotEqual(t, first, id)
	snap = h.m.Snapshot()
	assert.Equal(t, id, snap.SessionID)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Input)
}

func TestStartNewSessionCancelsStream(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Send(context.Background(), "hi"))
	r := h.transport.next(t)

	h.m.StartNewSession(context.Background())
	r.events <- wire.Token("late")

	time.Sleep(20 * time.Millisecond)
	snap := h.m.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Messages)
}

func TestLoadSession(t *testing.T) {
	store := newFakeStore()
	store.messages["s-1"] = []Message{
		{ID: "m1", Role: RoleUser, Content: "hello"},
		{ID: "m2", Role: RoleAssistant, Content: "hi", Streaming: true},
	}
	h := newHarness(t, Options{Store: store})

	require.NoError(t, h.m.LoadSession(context.Background(), "s-1"))
	snap := h.m.Snapshot()
	assert.Equal(t, "s-1", snap.SessionID)
	require.Len(t, snap.Messages, 2)
	assert.False(t, snap.Messages[1].Streaming)

	bare := newHarness(t, Options{})
	assert.ErrorIs(t, bare.m.LoadSession(context.Background(), "s-1"), ErrNoStore)
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk full")
	h := newHarness(t, Options{Store: store})

	require.NoError(t, h.m.Send(context.Background(), "hi"))
	r := h.transport.next(t)
	r.events <- wire.Token("ok")
	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)
	assert.Equal(t, "ok", h.m.Snapshot().Messages[1].Content)
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.m.Send(context.Background(), "hi"))
	r := h.transport.next(t)
	r.events <- wire.Done()
	h.waitPhase(t, PhaseIdle)

	snap := h.m.Snapshot()
	snap.Messages[0].Content = "changed"
	assert.Equal(t, "hi", h.m.Snapshot().Messages[0].Content)
}
