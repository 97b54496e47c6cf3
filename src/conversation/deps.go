package conversation

import (
	"context"

	"github.com/elee1766/talkback/src/audio"
	"github.com/elee1766/talkback/src/audiotransport"
	"github.com/elee1766/talkback/src/streamctl"
	"github.com/elee1766/talkback/src/timeline"
	"github.com/elee1766/talkback/src/voice"
	"github.com/elee1766/talkback/src/wire"
)

// StreamController sends turns on the primary channel. *streamctl.Controller
// implements it.
type StreamController interface {
	Send(ctx context.Context, turn streamctl.Turn) (*streamctl.Handle, error)
	Cancel(h *streamctl.Handle)
}

// VoiceChannel is an open speech backend session. *audiotransport.Session
// implements it.
type VoiceChannel interface {
	StartRecording(sampleRate int) error
	SendFrame(frame audio.Frame) error
	StopRecording() error
	ControlBargeIn(action wire.BargeInAction, sessionID string) error
	Close() error
}

// VoiceCapture owns the microphone for one gesture. *voice.Session
// implements it.
type VoiceCapture interface {
	Start(ctx context.Context, cb voice.Callbacks) error
	Stop() ([]audio.Frame, error)
	Dispose()
	Mode() voice.Mode
}

// VoiceBackend creates the per-gesture voice resources.
type VoiceBackend interface {
	OpenChannel(ctx context.Context, cb audiotransport.Callbacks) (VoiceChannel, error)
	NewCapture(sink voice.FrameSink) VoiceCapture
	SampleRate() int
}

// Store persists conversation history. Failures are logged by the machine
// and never interrupt the conversation.
type Store interface {
	EnsureSession(ctx context.Context, sessionID, title string) error
	SaveMessage(ctx context.Context, sessionID string, msg Message) error
	SaveToolRun(ctx context.Context, sessionID string, run timeline.Run) error
	LoadMessages(ctx context.Context, sessionID string) ([]Message, error)
}
