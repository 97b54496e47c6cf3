package wire

// BargeInAction is the playback action requested by a barge-in message.
type BargeInAction string

const (
	BargeInPause  BargeInAction = "pause"
	BargeInResume BargeInAction = "resume"
)

// Control is a client to server message on the voice channel.
type Control struct {
	Type       string        `json:"type"`
	SampleRate int           `json:"sample_rate,omitempty"`
	Encoding   string        `json:"encoding,omitempty"`
	Action     BargeInAction `json:"action,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
}

// StartControl asks the server to begin speech recognition of the frames that follow.
func StartControl(sampleRate int) Control {
	return Control{Type: "start", SampleRate: sampleRate, Encoding: "pcm16"}
}

// StopControl marks the end of the captured utterance.
func StopControl() Control {
	return Control{Type: "stop"}
}

// BargeIn asks the server to pause or resume text-to-speech playback of a session.
func BargeIn(action BargeInAction, sessionID string) Control {
	return Control{Type: "barge_in", Action: action, SessionID: sessionID}
}

// VoiceEventType identifies a server to client message on the voice channel.
type VoiceEventType string

const (
	VoiceRecordingStarted VoiceEventType = "recording_started"
	VoiceRecordingStopped VoiceEventType = "recording_stopped"
	VoicePartial          VoiceEventType = "partial"
	VoiceFinal            VoiceEventType = "final"
	VoiceLevel            VoiceEventType = "level"
	VoiceError            VoiceEventType = "error"
	VoiceTTSStart         VoiceEventType = "tts_start"
	VoiceTTSEnd           VoiceEventType = "tts_end"
)

// VoiceEvent is a decoded server message on the voice channel.
type VoiceEvent struct {
	Type      VoiceEventType `json:"type"`
	Text      string         `json:"text,omitempty"`
	Level     float64        `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}
