package conversation

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/elee1766/talkback/src/timeline"
)

// EventType identifies a view event.
type EventType string

const (
	EventUserMessage     EventType = "user_message"
	EventAssistantStart  EventType = "assistant_start"
	EventAssistantChunk  EventType = "assistant_chunk"
	EventAssistantEnd    EventType = "assistant_end"
	EventToolRun         EventType = "tool_run"
	EventPhase           EventType = "phase"
	EventVoice           EventType = "voice"
	EventTranscript      EventType = "transcript"
	EventPlayback        EventType = "playback"
	EventNotice          EventType = "notice"
	EventError           EventType = "error"
	EventSessionStarted  EventType = "session_started"
	EventStreamDataReset EventType = "stream_data_reset"
)

// ViewEvent is emitted after every visible state change, in the order the
// changes were applied.
type ViewEvent interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetSessionID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetSessionID() string    { return e.SessionID }

type UserMessageEvent struct {
	BaseEvent
	Message Message `json:"message"`
}

type AssistantStartEvent struct {
	BaseEvent
	MessageID string `json:"message_id"`
}

type AssistantChunkEvent struct {
	BaseEvent
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// AssistantEndEvent carries the finalized message. Reason is done, error or
// cancelled.
type AssistantEndEvent struct {
	BaseEvent
	Message Message `json:"message"`
	Reason  string  `json:"reason"`
}

type ToolRunEvent struct {
	BaseEvent
	Run timeline.Run `json:"run"`
}

type PhaseEvent struct {
	BaseEvent
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

type VoiceEvent struct {
	BaseEvent
	Voice VoiceSession `json:"voice"`
}

type TranscriptEvent struct {
	BaseEvent
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type PlaybackEvent struct {
	BaseEvent
	Playback Playback `json:"playback"`
}

// NoticeEvent is a transient message for the user, such as a rejected action.
type NoticeEvent struct {
	BaseEvent
	Message string `json:"message"`
}

// ErrorEvent reports a failure that ended a stream or voice session.
type ErrorEvent struct {
	BaseEvent
	Error   error  `json:"error"`
	Context string `json:"context"` // stream or voice
}

type SessionStartedEvent struct {
	BaseEvent
}

type StreamDataResetEvent struct {
	BaseEvent
}

// EventSink receives view events.
type EventSink interface {
	Send(event ViewEvent) error
	Close() error
}

// EventProcessor handles view events one at a time.
type EventProcessor interface {
	Process(event ViewEvent) error
	Close() error
}

// ErrSinkClosed is returned by Send after Close.
var ErrSinkClosed = errors.New("event sink is closed")

// ChannelEventSink hands events to processors on its own goroutine.
type ChannelEventSink struct {
	events     chan ViewEvent
	processors []EventProcessor
	done       chan struct{}
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewChannelEventSink starts a sink with the given buffer.
func NewChannelEventSink(bufferSize int, logger *slog.Logger, processors ...EventProcessor) *ChannelEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	sink := &ChannelEventSink{
		events:     make(chan ViewEvent, bufferSize),
		processors: processors,
		done:       make(chan struct{}),
		logger:     logger.With("component", "event_sink"),
	}
	go sink.processEvents()
	return sink
}

// Send queues an event. It blocks while the buffer is full.
func (s *ChannelEventSink) Send(event ViewEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.events <- event
	return nil
}

// Close drains queued events and closes the processors.
func (s *ChannelEventSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done

	var errs []error
	for _, p := range s.processors {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *ChannelEventSink) processEvents() {
	defer close(s.done)

	for event := range s.events {
		for _, processor := range s.processors {
			if err := processor.Process(event); err != nil {
				s.logger.Warn("event processor failed", "type", event.GetType(), "error", err)
			}
		}
	}
}

// FuncProcessor adapts a function to EventProcessor.
type FuncProcessor func(event ViewEvent) error

func (f FuncProcessor) Process(event ViewEvent) error { return f(event) }
func (f FuncProcessor) Close() error                  { return nil }
