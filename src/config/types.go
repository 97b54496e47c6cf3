package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/swaggest/jsonschema-go"
)

// Config represents the complete configuration for talkback
type Config struct {
	// Version of the configuration format
	Version string `json:"version"`

	// Conversation backend endpoints
	Server ServerConfig `json:"server"`

	// Microphone capture and playback
	Audio AudioConfig `json:"audio"`

	// Push-to-talk behaviour
	Voice VoiceConfig `json:"voice"`

	Conversation ConversationConfig `json:"conversation"`

	// Session history database
	Storage StorageConfig `json:"storage"`

	Log LogConfig `json:"log"`
}

// ServerConfig locates the conversation backend.
type ServerConfig struct {
	// BaseURL of the backend, http(s) or ws(s)
	BaseURL string `json:"base_url" validate:"required,ws_or_http_url" required:"true" example:"http://localhost:8000"`

	APIKey string `json:"api_key,omitempty"`

	// StreamPath is the path turns are POSTed to
	StreamPath string `json:"stream_path" validate:"required,startswith=/"`

	// VoicePath is the websocket path of the speech channel. Empty disables voice.
	VoicePath string `json:"voice_path" validate:"omitempty,startswith=/"`

	ConnectTimeout Duration `json:"connect_timeout" validate:"gte=0"`
}

// AudioConfig describes the recorder and the audio formats on the wire.
type AudioConfig struct {
	// RecorderCommand is the ffmpeg binary used to read the microphone
	RecorderCommand string `json:"recorder_command"`

	// InputFormat and InputDevice are passed to ffmpeg as -f and -i
	InputFormat string `json:"input_format"`
	InputDevice string `json:"input_device"`

	CaptureSampleRate  int `json:"capture_sample_rate" validate:"sample_rate"`
	PlaybackSampleRate int `json:"playback_sample_rate" validate:"sample_rate"`

	FrameDurationMs int `json:"frame_duration_ms" validate:"min=10,max=100" minimum:"10" maximum:"100"`
	LevelWindowMs   int `json:"level_window_ms" validate:"min=10,max=1000" minimum:"10" maximum:"1000"`

	// Mode is buffered (send on stop) or streaming (send while recording)
	Mode string `json:"mode" validate:"capture_mode" enum:"buffered,streaming"`
}

type VoiceConfig struct {
	// FinalTranscriptGraceMs is how long to wait for a final transcript
	// after recording stops.
	FinalTranscriptGraceMs int `json:"final_transcript_grace_ms" validate:"min=100,max=60000" minimum:"100" maximum:"60000"`
}

type ConversationConfig struct {
	ToolsEnabled     bool `json:"tools_enabled"`
	ToolHistoryLimit int  `json:"tool_history_limit" validate:"min=1,max=1000" minimum:"1" maximum:"1000"`
}

type StorageConfig struct {
	DatabasePath string `json:"database_path"`
	Disabled     bool   `json:"disabled"`
}

type LogConfig struct {
	Level  string `json:"level" validate:"log_level" enum:"debug,info,warn,error"`
	Format string `json:"format" validate:"log_format" enum:"text,json"`

	// File receives the logs of the interactive chat command
	File string `json:"file,omitempty"`
}

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// bare numbers are milliseconds
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// JSONSchema describes both accepted encodings.
func (Duration) JSONSchema() (jsonschema.Schema, error) {
	var s jsonschema.Schema
	s.AddType(jsonschema.String)
	s.AddType(jsonschema.Integer)
	s.WithDescription("Go duration string such as \"10s\", or a number of milliseconds")
	return s, nil
}

// ConfigPrecedence defines the order of configuration loading
type ConfigPrecedence struct {
	// SystemConfig path
	SystemConfig string

	// UserConfig path
	UserConfig string

	// ProjectConfig path, relative to the working directory
	ProjectConfig string

	// LocalConfig path, not meant to be committed
	LocalConfig string

	// EnvironmentPrefix for environment variable overrides
	EnvironmentPrefix string
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigSource indicates where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"
	SourceUser        ConfigSource = "user"
	SourceProject     ConfigSource = "project"
	SourceLocal       ConfigSource = "local"
	SourceEnvironment ConfigSource = "environment"
)

// Capture modes
const (
	ModeBuffered  = "buffered"
	ModeStreaming = "streaming"
)
