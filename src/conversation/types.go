package conversation

import (
	"time"

	"github.com/elee1766/talkback/src/timeline"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation. Content only changes while
// Streaming is true, and Streaming turns false exactly once.
type Message struct {
	ID           string
	Role         Role
	Content      string
	CreatedAt    time.Time
	Streaming    bool
	ToolCallName string
}

// Phase is the machine's top level state.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseStreaming       Phase = "streaming"
	PhaseVoiceConnecting Phase = "voice_connecting"
	PhaseVoiceRecording  Phase = "voice_recording"
	PhaseVoiceProcessing Phase = "voice_processing"
	PhaseError           Phase = "error"
)

// Voice reports whether the phase belongs to the voice flow.
func (p Phase) Voice() bool {
	switch p {
	case PhaseVoiceConnecting, PhaseVoiceRecording, PhaseVoiceProcessing:
		return true
	}
	return false
}

// VoiceState is the state of the push-to-talk gesture.
type VoiceState string

const (
	VoiceIdle       VoiceState = "idle"
	VoiceConnecting VoiceState = "connecting"
	VoiceRecording  VoiceState = "recording"
	VoiceProcessing VoiceState = "processing"
)

// VoiceSession is the view of the current or last push-to-talk gesture.
type VoiceSession struct {
	State             VoiceState
	AudioLevel        int
	SampleRate        int
	TranscriptPartial string
	TranscriptFinal   string

	// Error holds the failure kind (for example PermissionDeniedError) and
	// ErrorMessage the text to show for it.
	Error        string
	ErrorMessage string
}

// Snapshot is a deep copy of the machine state for views.
type Snapshot struct {
	SessionID string
	Phase     Phase
	Messages  []Message

	// Tools is most recent first; ToolLedger keeps creation order.
	Tools      []timeline.Run
	ToolLedger []timeline.Run

	Voice      VoiceSession
	Playback   Playback
	Input      string
	Notice     string
	LastError  string
	Streaming  bool
	Recording  bool
	Generation uint64
}

// Playback tracks text-to-speech output announced by the speech backend.
type Playback struct {
	SessionID string
	Playing   bool
}
