package config

import (
	"time"
)

// DefaultConfig returns a default configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			BaseURL:        "http://localhost:8000",
			StreamPath:     "/api/chat/stream",
			VoicePath:      "/ws/voice",
			ConnectTimeout: Duration(10 * time.Second),
		},
		Audio: AudioConfig{
			RecorderCommand:    "ffmpeg",
			InputFormat:        "pulse",
			InputDevice:        "default",
			CaptureSampleRate:  16000,
			PlaybackSampleRate: 24000,
			FrameDurationMs:    40,
			LevelWindowMs:      50,
			Mode:               ModeStreaming,
		},
		Voice: VoiceConfig{
			FinalTranscriptGraceMs: 3000,
		},
		Conversation: ConversationConfig{
			ToolsEnabled:     true,
			ToolHistoryLimit: 20,
		},
		Storage: StorageConfig{
			DatabasePath: GetDefaultStoragePaths().DatabasePath,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
