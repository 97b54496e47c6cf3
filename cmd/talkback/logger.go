package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/elee1766/talkback/src/config"
	"github.com/lmittmann/tint"
)

// createChatLogger writes JSON logs to a file so they do not interleave
// with the conversation on the terminal.
func createChatLogger(cfg *config.Config) (*slog.Logger, func()) {
	path := cfg.Log.File
	if path == "" {
		path = config.GetDefaultStoragePaths().LogPath
	}

	discard := func() (*slog.Logger, func()) {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return discard()
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return discard()
	}

	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	return logger, func() { file.Close() }
}

// createCLILogger creates a logger for CLI commands that write to stderr
func createCLILogger(cfg *config.Config) *slog.Logger {
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: cfg.LogLevel(),
	}))
}
