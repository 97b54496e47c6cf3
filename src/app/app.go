// Package app builds a conversation and its collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elee1766/talkback/src/audio"
	"github.com/elee1766/talkback/src/audiotransport"
	"github.com/elee1766/talkback/src/chatclient"
	"github.com/elee1766/talkback/src/config"
	"github.com/elee1766/talkback/src/conversation"
	"github.com/elee1766/talkback/src/storage"
	"github.com/elee1766/talkback/src/streamctl"
	"github.com/elee1766/talkback/src/voice"
)

// App represents the main application with all services
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Chat is the turn transport shared by every conversation; each
	// conversation gets its own stream controller on top of it.
	Chat *chatclient.Client

	// DB is nil when storage is disabled
	DB *storage.DB

	// Voice is nil when no voice endpoint is configured
	Voice *VoiceBackend
}

// New creates a new App instance with all services initialized
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	if !cfg.Storage.Disabled {
		db, err := storage.Open(ctx, cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		a.DB = db
	}

	a.Chat = chatclient.NewClient(chatclient.Config{
		BaseURL:        cfg.Server.BaseURL,
		APIKey:         cfg.Server.APIKey,
		StreamPath:     cfg.Server.StreamPath,
		ConnectTimeout: cfg.ConnectTimeout(),
		Logger:         logger,
	})

	if url := cfg.VoiceURL(); url != "" {
		transport := audiotransport.NewClient(audiotransport.Config{
			URL:            url,
			APIKey:         cfg.Server.APIKey,
			ConnectTimeout: cfg.ConnectTimeout(),
			Logger:         logger,
		})
		a.Voice = NewVoiceBackend(transport, audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand), voice.Options{
			Mode: voice.Mode(cfg.Audio.Mode),
			Device: audio.CaptureConfig{
				SampleRate:  cfg.Audio.CaptureSampleRate,
				Channels:    1,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			TargetRate:    cfg.Audio.CaptureSampleRate,
			FrameDuration: cfg.FrameDuration(),
			LevelWindow:   cfg.LevelWindow(),
			Logger:        logger,
		})
	}

	return a, nil
}

// MachineOptions are the per-conversation settings of NewMachine.
type MachineOptions struct {
	Sink      conversation.EventSink
	SessionID string

	// NoVoice builds a text-only conversation even when voice is configured.
	NoVoice bool

	OnPlaybackAudio func(pcm []byte)
}

// NewMachine builds a conversation wired to the app's services. The
// conversation owns its stream controller, so single-flight applies per
// conversation.
func (a *App) NewMachine(opts MachineOptions) *conversation.Machine {
	mopts := conversation.Options{
		Stream:               streamctl.New(a.Chat, a.Logger),
		Sink:                 opts.Sink,
		Logger:               a.Logger,
		ToolHistoryLimit:     a.Config.Conversation.ToolHistoryLimit,
		FinalTranscriptGrace: a.Config.FinalTranscriptGrace(),
		ToolsEnabled:         a.Config.Conversation.ToolsEnabled,
		SessionID:            opts.SessionID,
		OnPlaybackAudio:      opts.OnPlaybackAudio,
	}
	// leave the interfaces nil rather than holding typed nil pointers
	if a.Voice != nil && !opts.NoVoice {
		mopts.Voice = a.Voice
	}
	if a.DB != nil {
		mopts.Store = storage.NewStore(a.DB)
	}
	return conversation.New(mopts)
}

// Close closes all resources held by the app
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
