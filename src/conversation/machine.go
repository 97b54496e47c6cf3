// Package conversation is the orchestration root: it folds the text stream,
// the tool timeline and the voice channel into one consistent state that
// views read through snapshots and view events.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/elee1766/talkback/src/streamctl"
	"github.com/elee1766/talkback/src/timeline"
	"github.com/elee1766/talkback/src/wire"
	"github.com/google/uuid"
)

const defaultFinalTranscriptGrace = 3 * time.Second

// ErrNoStore is returned by LoadSession when no store is configured.
var ErrNoStore = errors.New("no session store configured")

// Options configures a Machine.
type Options struct {
	Stream StreamController
	Voice  VoiceBackend // nil disables voice
	Store  Store        // nil disables persistence
	Sink   EventSink    // nil drops view events
	Logger *slog.Logger

	ToolHistoryLimit     int
	FinalTranscriptGrace time.Duration
	ToolsEnabled         bool
	SessionID            string

	// OnPlaybackAudio receives text-to-speech audio from the voice channel.
	OnPlaybackAudio func(pcm []byte)

	Now func() time.Time
}

// Machine is the state of one conversation. All methods are safe for
// concurrent use. Inbound stream and voice events are applied only while
// their generation is current, so events from a cancelled stream or an
// abandoned voice session are dropped.
type Machine struct {
	stream StreamController
	voice  VoiceBackend
	store  Store
	sink   EventSink
	logger *slog.Logger
	now    func() time.Time
	opts   Options
	tools  *timeline.Timeline

	mu        sync.Mutex
	sessionID string
	phase     Phase
	messages  []Message
	input     string
	notice    string
	lastError string
	playback  Playback

	streamGen   uint64
	handle      *streamctl.Handle
	assistantID string

	voiceGen      uint64
	voiceState    VoiceSession
	channel       VoiceChannel
	capture       VoiceCapture
	acked         bool
	finals        []string
	pendingSubmit bool
	graceTimer    *time.Timer
	released      chan struct{}

	outbox   []ViewEvent
	draining bool
}

// New creates a machine in the idle phase with a fresh session.
func New(opts Options) *Machine {
	if opts.FinalTranscriptGrace <= 0 {
		opts.FinalTranscriptGrace = defaultFinalTranscriptGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		stream:     opts.Stream,
		voice:      opts.Voice,
		store:      opts.Store,
		sink:       opts.Sink,
		logger:     logger.With("component", "conversation"),
		now:        opts.Now,
		opts:       opts,
		tools:      timeline.New(opts.ToolHistoryLimit),
		sessionID:  opts.SessionID,
		phase:      PhaseIdle,
		voiceState: VoiceSession{State: VoiceIdle},
	}
}

// SessionID returns the current session identifier.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Snapshot returns a deep copy of the state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		SessionID:  m.sessionID,
		Phase:      m.phase,
		Messages:   append([]Message(nil), m.messages...),
		Tools:      m.tools.Display(),
		ToolLedger: m.tools.Runs(),
		Voice:      m.voiceState,
		Playback:   m.playback,
		Input:      m.input,
		Notice:     m.notice,
		LastError:  m.lastError,
		Streaming:  m.phase == PhaseStreaming,
		Recording:  m.phase == PhaseVoiceRecording,
		Generation: m.streamGen,
	}
}

// SetInput records the draft text of the input box.
func (m *Machine) SetInput(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = text
}

// Send submits a typed user turn. It is rejected while a response streams or
// while voice is active.
func (m *Machine) Send(ctx context.Context, content string) error {
	m.mu.Lock()
	if err := m.admitLocked(); err != nil {
		m.rejectLocked(err)
		return err
	}
	if strings.TrimSpace(content) == "" {
		m.rejectLocked(ErrEmptyMessage)
		return ErrEmptyMessage
	}
	return m.sendLocked(ctx, content, nil)
}

// Cancel stops the active stream or voice gesture. It is not an error and
// emits no error event; calling it when nothing is active does nothing.
func (m *Machine) Cancel() {
	m.mu.Lock()
	switch {
	case m.phase == PhaseStreaming:
		h := m.handle
		m.streamGen++
		msg, ok := m.finalizeLocked()
		evs, orphans := m.endRunningToolsLocked()
		if ok {
			evs = append(evs, &AssistantEndEvent{BaseEvent: m.base(EventAssistantEnd), Message: msg, Reason: "cancelled"})
		}
		evs = append(evs, m.setPhaseLocked(PhaseIdle)...)
		sessionID := m.sessionID
		m.unlockAndEmit(evs...)

		if h != nil {
			m.stream.Cancel(h)
		}
		if ok && msg.Content != "" {
			m.persistMessage(sessionID, msg)
		}
		m.persistToolRuns(sessionID, orphans)
		m.logger.Debug("stream cancelled")

	case m.phase.Voice():
		release := m.detachVoiceLocked()
		m.voiceState.State = VoiceIdle
		evs := m.setPhaseLocked(PhaseIdle)
		evs = append(evs, m.voiceEventLocked())
		m.unlockAndEmit(evs...)
		go release()
		m.logger.Debug("voice cancelled")

	default:
		m.mu.Unlock()
	}
}

// ClearStreamData resets the tool timeline and the transcript and speech
// metadata. Messages are kept.
func (m *Machine) ClearStreamData() {
	m.mu.Lock()
	m.clearStreamDataLocked()
	m.unlockAndEmit(&StreamDataResetEvent{BaseEvent: m.base(EventStreamDataReset)})
}

func (m *Machine) clearStreamDataLocked() {
	m.tools.Reset()
	m.lastError = ""
	m.voiceState = VoiceSession{State: m.voiceState.State, SampleRate: m.voiceState.SampleRate}
}

// StartNewSession cancels any activity and starts an empty session with a
// new identifier. It is the only operation that discards message history.
func (m *Machine) StartNewSession(ctx context.Context) string {
	m.Cancel()

	m.mu.Lock()
	m.sessionID = uuid.NewString()
	m.messages = nil
	m.input = ""
	m.notice = ""
	m.clearStreamDataLocked()
	id := m.sessionID
	m.unlockAndEmit(&SessionStartedEvent{BaseEvent: m.base(EventSessionStarted)})

	m.logger.Info("new session", "session_id", id)
	return id
}

// LoadSession replaces the message list with the stored history of
// sessionID. It is rejected unless the machine is idle.
func (m *Machine) LoadSession(ctx context.Context, sessionID string) error {
	if m.store == nil {
		return ErrNoStore
	}
	msgs, err := m.store.LoadMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.admitLocked(); err != nil {
		m.rejectLocked(err)
		return err
	}
	for i := range msgs {
		msgs[i].Streaming = false
	}
	m.sessionID = sessionID
	m.messages = msgs
	m.input = ""
	m.clearStreamDataLocked()
	m.unlockAndEmit(&SessionStartedEvent{BaseEvent: m.base(EventSessionStarted)})
	return nil
}

// SetPlayback records whether text-to-speech is playing for sessionID.
func (m *Machine) SetPlayback(sessionID string, playing bool) {
	m.mu.Lock()
	if !playing && m.playback.SessionID != "" && sessionID != "" && sessionID != m.playback.SessionID {
		// end of an older playback
		m.mu.Unlock()
		return
	}
	m.playback = Playback{SessionID: sessionID, Playing: playing}
	m.unlockAndEmit(&PlaybackEvent{BaseEvent: m.base(EventPlayback), Playback: m.playback})
}

// Close cancels any activity and waits for voice resources to be released.
func (m *Machine) Close(ctx context.Context) error {
	m.Cancel()

	m.mu.Lock()
	released := m.released
	m.mu.Unlock()
	if released == nil {
		return nil
	}
	select {
	case <-released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admitLocked enforces that streaming and voice exclude each other.
func (m *Machine) admitLocked() error {
	switch {
	case m.phase == PhaseStreaming:
		return ErrStreamActive
	case m.phase.Voice():
		return ErrVoiceActive
	}
	return nil
}

// rejectLocked records a notice for a refused action and unlocks.
func (m *Machine) rejectLocked(err error) {
	m.notice = noticeFor(err)
	m.logger.Debug("action rejected", "reason", err)
	m.unlockAndEmit(&NoticeEvent{BaseEvent: m.base(EventNotice), Message: m.notice})
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, ErrStreamActive):
		return "Wait for the response to finish or cancel it first."
	case errors.Is(err, ErrVoiceActive):
		return "Stop recording before sending a message."
	case errors.Is(err, ErrNotRecording):
		return "Not recording."
	case errors.Is(err, ErrVoiceDisabled):
		return "Voice input is not configured."
	}
	return err.Error()
}

// sendLocked starts a turn and unlocks. pre holds events produced earlier
// under the same lock.
func (m *Machine) sendLocked(ctx context.Context, content string, pre []ViewEvent) error {
	h, err := m.stream.Send(ctx, streamctl.Turn{
		Content:      content,
		ToolsEnabled: m.opts.ToolsEnabled,
		SessionID:    m.sessionID,
	})
	if err != nil {
		if errors.Is(err, streamctl.ErrAlreadyStreaming) {
			err = ErrStreamActive
		}
		m.notice = noticeFor(err)
		m.unlockAndEmit(append(pre, &NoticeEvent{BaseEvent: m.base(EventNotice), Message: m.notice})...)
		return err
	}

	now := m.now()
	user := Message{ID: uuid.NewString(), Role: RoleUser, Content: content, CreatedAt: now}
	assistant := Message{ID: uuid.NewString(), Role: RoleAssistant, CreatedAt: now, Streaming: true}
	m.messages = append(m.messages, user, assistant)
	m.input = ""
	m.notice = ""
	m.lastError = ""
	m.streamGen++
	gen := m.streamGen
	m.handle = h
	m.assistantID = assistant.ID
	sessionID := m.sessionID

	evs := append(pre, &UserMessageEvent{BaseEvent: m.base(EventUserMessage), Message: user})
	evs = append(evs, m.setPhaseLocked(PhaseStreaming)...)
	evs = append(evs, &AssistantStartEvent{BaseEvent: m.base(EventAssistantStart), MessageID: assistant.ID})
	m.unlockAndEmit(evs...)

	m.logger.Debug("turn sent", "session_id", sessionID, "generation", gen, "handle_id", h.ID)

	if m.store != nil {
		if err := m.store.EnsureSession(ctx, sessionID, sessionTitle(content)); err != nil {
			m.logger.Warn("failed to persist session", "session_id", sessionID, "error", err)
		}
		m.persistMessage(sessionID, user)
	}

	go m.consume(gen, h)
	return nil
}

func (m *Machine) consume(gen uint64, h *streamctl.Handle) {
	for ev := range h.Events() {
		m.applyStream(gen, ev)
	}
}

func (m *Machine) applyStream(gen uint64, ev wire.StreamEvent) {
	m.mu.Lock()
	if gen != m.streamGen || m.phase != PhaseStreaming {
		m.mu.Unlock()
		return
	}
	sessionID := m.sessionID

	switch ev.Kind {
	case wire.EventToken:
		idx := m.messageIndexLocked(m.assistantID)
		if idx < 0 {
			m.mu.Unlock()
			return
		}
		m.messages[idx].Content += ev.Text
		m.unlockAndEmit(&AssistantChunkEvent{BaseEvent: m.base(EventAssistantChunk), MessageID: m.assistantID, Content: ev.Text})

	case wire.EventToolStart, wire.EventToolUpdate, wire.EventToolEnd:
		tev, ok := timeline.FromWire(ev)
		if !ok {
			m.mu.Unlock()
			return
		}
		run, held := m.tools.Apply(tev)
		if !held {
			m.mu.Unlock()
			return
		}
		if ev.Kind == wire.EventToolStart {
			if idx := m.messageIndexLocked(m.assistantID); idx >= 0 && m.messages[idx].ToolCallName == "" {
				m.messages[idx].ToolCallName = run.Tool
			}
		}
		m.unlockAndEmit(&ToolRunEvent{BaseEvent: m.base(EventToolRun), Run: run})
		if ev.Kind == wire.EventToolEnd && run.Status.Terminal() {
			m.persistToolRun(sessionID, run)
		}

	case wire.EventDone:
		msg, ok := m.finalizeLocked()
		evs, orphans := m.endRunningToolsLocked()
		if ok {
			evs = append(evs, &AssistantEndEvent{BaseEvent: m.base(EventAssistantEnd), Message: msg, Reason: "done"})
		}
		evs = append(evs, m.setPhaseLocked(PhaseIdle)...)
		m.unlockAndEmit(evs...)
		if ok {
			m.persistMessage(sessionID, msg)
		}
		m.persistToolRuns(sessionID, orphans)

	case wire.EventError:
		msg, ok := m.finalizeLocked()
		err := ev.Err
		if err == nil {
			err = errors.New(ev.Message)
		}
		m.lastError = ev.Message
		if m.lastError == "" {
			m.lastError = err.Error()
		}
		evs, orphans := m.endRunningToolsLocked()
		if ok {
			evs = append(evs, &AssistantEndEvent{BaseEvent: m.base(EventAssistantEnd), Message: msg, Reason: "error"})
		}
		evs = append(evs, m.setPhaseLocked(PhaseError)...)
		evs = append(evs, &ErrorEvent{BaseEvent: m.base(EventError), Error: err, Context: "stream"})
		evs = append(evs, m.setPhaseLocked(PhaseIdle)...)
		m.unlockAndEmit(evs...)

		m.logger.Warn("stream failed", "session_id", sessionID, "error", err)
		if ok && msg.Content != "" {
			m.persistMessage(sessionID, msg)
		}
		m.persistToolRuns(sessionID, orphans)

	default:
		m.mu.Unlock()
	}
}

// endRunningToolsLocked fails the tool runs an ended stream left open, so
// none stays running past its turn.
func (m *Machine) endRunningToolsLocked() ([]ViewEvent, []timeline.Run) {
	runs := m.tools.EndRunning()
	evs := make([]ViewEvent, 0, len(runs)+3)
	for _, run := range runs {
		evs = append(evs, &ToolRunEvent{BaseEvent: m.base(EventToolRun), Run: run})
	}
	if len(runs) > 0 {
		m.logger.Debug("tool runs ended with the stream", "count", len(runs))
	}
	return evs, runs
}

// finalizeLocked ends the streaming assistant message and the active handle.
func (m *Machine) finalizeLocked() (Message, bool) {
	m.handle = nil
	idx := m.messageIndexLocked(m.assistantID)
	m.assistantID = ""
	if idx < 0 || !m.messages[idx].Streaming {
		return Message{}, false
	}
	m.messages[idx].Streaming = false
	return m.messages[idx], true
}

func (m *Machine) messageIndexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Machine) setPhaseLocked(to Phase) []ViewEvent {
	from := m.phase
	if from == to {
		return nil
	}
	m.phase = to
	return []ViewEvent{&PhaseEvent{BaseEvent: m.base(EventPhase), From: from, To: to}}
}

func (m *Machine) base(t EventType) BaseEvent {
	return BaseEvent{Type: t, Timestamp: m.now(), SessionID: m.sessionID}
}

// unlockAndEmit queues evs and releases the lock. Events leave in the order
// they were queued across all goroutines and the sink is never called with
// the lock held.
func (m *Machine) unlockAndEmit(evs ...ViewEvent) {
	if m.sink == nil {
		m.mu.Unlock()
		return
	}
	m.outbox = append(m.outbox, evs...)
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.outbox) > 0 {
		batch := m.outbox
		m.outbox = nil
		m.mu.Unlock()
		for _, ev := range batch {
			if err := m.sink.Send(ev); err != nil {
				m.logger.Debug("view event dropped", "type", ev.GetType(), "error", err)
			}
		}
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Machine) persistMessage(sessionID string, msg Message) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveMessage(context.Background(), sessionID, msg); err != nil {
		m.logger.Warn("failed to persist message", "session_id", sessionID, "message_id", msg.ID, "error", err)
	}
}

func (m *Machine) persistToolRun(sessionID string, run timeline.Run) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveToolRun(context.Background(), sessionID, run); err != nil {
		m.logger.Warn("failed to persist tool run", "session_id", sessionID, "run_id", run.ID, "error", err)
	}
}

func (m *Machine) persistToolRuns(sessionID string, runs []timeline.Run) {
	for _, run := range runs {
		m.persistToolRun(sessionID, run)
	}
}

func sessionTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if r := []rune(title); len(r) > 60 {
		title = string(r[:60]) + "…"
	}
	return title
}
