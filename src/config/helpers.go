package config

import (
	"log/slog"
	"strings"
	"time"
)

// StreamURL is the endpoint turns are posted to.
func (c *Config) StreamURL() string {
	return joinURL(c.Server.BaseURL, c.Server.StreamPath)
}

// VoiceURL is the speech channel endpoint, or empty when voice is disabled.
func (c *Config) VoiceURL() string {
	if c.Server.VoicePath == "" {
		return ""
	}
	return joinURL(c.Server.BaseURL, c.Server.VoicePath)
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeout)
}

func (c *Config) FrameDuration() time.Duration {
	return time.Duration(c.Audio.FrameDurationMs) * time.Millisecond
}

func (c *Config) LevelWindow() time.Duration {
	return time.Duration(c.Audio.LevelWindowMs) * time.Millisecond
}

func (c *Config) FinalTranscriptGrace() time.Duration {
	return time.Duration(c.Voice.FinalTranscriptGraceMs) * time.Millisecond
}

// LogLevel parses Log.Level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	return ParseLogLevel(c.Log.Level)
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Server.APIKey != "" {
		cp.Server.APIKey = "********"
	}
	return &cp
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
