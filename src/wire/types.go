// Package wire defines the messages exchanged with the conversation backend:
// the outbound user turn, the inbound stream events, and the voice channel
// control messages.
package wire

import (
	"time"
)

// EventKind identifies an inbound stream event after decoding.
type EventKind string

const (
	EventToken      EventKind = "token"
	EventToolStart  EventKind = "tool_start"
	EventToolUpdate EventKind = "tool_update"
	EventToolEnd    EventKind = "tool_end"
	EventDone       EventKind = "done"
	EventError      EventKind = "error"
)

// Terminal reports whether no further events may follow an event of this kind.
func (k EventKind) Terminal() bool {
	return k == EventDone || k == EventError
}

// ToolStatus is the status carried by tool events. Update events use
// start/end/ok/error/cached, end events use success/error/cached.
type ToolStatus string

const (
	ToolStatusStart   ToolStatus = "start"
	ToolStatusEnd     ToolStatus = "end"
	ToolStatusOK      ToolStatus = "ok"
	ToolStatusError   ToolStatus = "error"
	ToolStatusCached  ToolStatus = "cached"
	ToolStatusSuccess ToolStatus = "success"
)

// ToolEvent is the decoded payload of any tool lifecycle event.
type ToolEvent struct {
	ID     string
	Tool   string
	Server string
	Args   string
	Status ToolStatus
	At     time.Time
}

// StreamEvent is one inbound event of a response stream.
type StreamEvent struct {
	Kind EventKind

	// Text is set for token events.
	Text string

	// Tool is set for tool_start, tool_update and tool_end events.
	Tool *ToolEvent

	// Message and Err are set for error events. Err is nil when the
	// error was reported by the server rather than raised locally.
	Message string
	Err     error
}

// Token builds a token event.
func Token(text string) StreamEvent {
	return StreamEvent{Kind: EventToken, Text: text}
}

// Done builds a done event.
func Done() StreamEvent {
	return StreamEvent{Kind: EventDone}
}

// Failure builds a locally raised error event.
func Failure(err error) StreamEvent {
	return StreamEvent{Kind: EventError, Message: err.Error(), Err: err}
}

// EventReader yields the events of one response stream in arrival order.
// Next returns io.EOF once the underlying stream is exhausted.
type EventReader interface {
	Next() (StreamEvent, error)
	Close() error
}

// OutboundTurn is the request body for one user turn.
type OutboundTurn struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	EnableTools bool   `json:"enable_tools"`
	SessionID   string `json:"session_id,omitempty"`
}

// NewTurn builds a message turn.
func NewTurn(content string, enableTools bool, sessionID string) OutboundTurn {
	return OutboundTurn{
		Type:        "message",
		Content:     content,
		EnableTools: enableTools,
		SessionID:   sessionID,
	}
}
