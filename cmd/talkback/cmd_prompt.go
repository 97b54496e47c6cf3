package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/elee1766/talkback/src/app"
	"github.com/elee1766/talkback/src/conversation"
)

// PromptCmd represents the single prompt command
type PromptCmd struct {
	Text    []string      `arg:"" optional:"" help:"The message to send"`
	File    string        `short:"f" help:"Load the message from a file"`
	Raw     bool          `help:"Print only the reply text"`
	Session string        `help:"Continue a stored session by ID"`
	Timeout time.Duration `default:"5m" help:"Give up after this long"`
}

func (p *PromptCmd) Run(ctx context.Context, cli *CLI) error {
	text := strings.Join(p.Text, " ")
	if p.File != "" {
		data, err := os.ReadFile(p.File)
		if err != nil {
			return err
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: prompt text is required", errUsage)
	}

	cfg, _, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger := createCLILogger(cfg)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	return runPrompt(ctx, a, text, p.Session, NewConsoleRenderer(os.Stdout, RendererConfig{RawMode: p.Raw}))
}

// runPrompt sends one turn and waits for the conversation to settle. A
// stream that ends in an error is returned as an error.
func runPrompt(ctx context.Context, a *app.App, text, sessionID string, renderer conversation.EventProcessor) error {
	var (
		streamErr error
		once      sync.Once
	)
	settled := make(chan struct{})
	watcher := conversation.FuncProcessor(func(ev conversation.ViewEvent) error {
		switch e := ev.(type) {
		case *conversation.ErrorEvent:
			streamErr = e.Error
		case *conversation.PhaseEvent:
			if e.To == conversation.PhaseIdle {
				once.Do(func() { close(settled) })
			}
		}
		return nil
	})

	sink := conversation.NewChannelEventSink(64, a.Logger, renderer, watcher)
	defer sink.Close()

	m := a.NewMachine(app.MachineOptions{Sink: sink, NoVoice: true})
	defer m.Close(context.Background())

	if sessionID != "" {
		if err := m.LoadSession(ctx, sessionID); err != nil {
			return fmt.Errorf("load session %s: %w", sessionID, err)
		}
	}
	if err := m.Send(ctx, text); err != nil {
		return err
	}

	select {
	case <-settled:
	case <-ctx.Done():
		m.Cancel()
		return ctx.Err()
	}

	if streamErr != nil {
		return streamErr
	}
	if msg := m.Snapshot().LastError; msg != "" {
		return errors.New(msg)
	}
	return nil
}
