package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/elee1766/talkback/src/app"
	"github.com/elee1766/talkback/src/conversation"
)

// ChatCmd runs the interactive conversation
type ChatCmd struct {
	Session string `help:"Resume a stored session by ID"`
	NoVoice bool   `help:"Disable push-to-talk"`
	Levels  bool   `help:"Show the microphone level while recording" default:"true" negatable:""`
}

const chatHelp = `commands:
  /rec            start recording (push-to-talk)
  /stop           stop recording and send what was heard
  /cancel         stop the current response or recording
  /new            start a new session
  /load <id>      switch to a stored session
  /tools          show recent tool runs
  /clear          clear tool runs and transcripts
  /quit           exit`

func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, _, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger, closeLog := createChatLogger(cfg)
	defer closeLog()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := os.Stdout
	renderer := NewConsoleRenderer(out, RendererConfig{EchoUser: true, ShowLevels: c.Levels})
	sink := conversation.NewChannelEventSink(256, logger, renderer)
	defer sink.Close()

	m := a.NewMachine(app.MachineOptions{Sink: sink, NoVoice: c.NoVoice})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Close(closeCtx); err != nil {
			logger.Warn("conversation did not shut down cleanly", "error", err)
		}
	}()

	if c.Session != "" {
		if err := m.LoadSession(ctx, c.Session); err != nil {
			return fmt.Errorf("load session %s: %w", c.Session, err)
		}
		printHistory(out, renderer, m.Snapshot().Messages)
	}

	fmt.Fprintln(out, renderer.styles.Muted.Render("type a message, or /help"))
	logger.Info("chat started", "session_id", m.SessionID(), "voice", a.Voice != nil && !c.NoVoice)

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, out, renderer, m, line); quit {
				return nil
			}
		}
	}
}

// handle runs one line of input and reports whether the user asked to quit.
// Rejections and failures reach the user as view events.
func (c *ChatCmd) handle(ctx context.Context, out io.Writer, renderer *ConsoleRenderer, m *conversation.Machine, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		_ = m.Send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/rec", "/r":
		_ = m.StartRecording(ctx)
	case "/stop", "/s":
		_ = m.StopRecording()
	case "/cancel", "/c":
		m.Cancel()
	case "/new":
		m.StartNewSession(ctx)
	case "/load":
		if err := m.LoadSession(ctx, strings.TrimSpace(arg)); err != nil {
			fmt.Fprintln(out, renderer.styles.Failure.Render(err.Error()))
			break
		}
		printHistory(out, renderer, m.Snapshot().Messages)
	case "/tools":
		for _, run := range m.Snapshot().Tools {
			fmt.Fprintln(out, renderer.toolLine(run))
		}
	case "/clear":
		m.ClearStreamData()
	case "/help", "/?":
		fmt.Fprintln(out, chatHelp)
	default:
		fmt.Fprintln(out, renderer.styles.Notice.Render("unknown command "+cmd+", try /help"))
	}
	return false
}

func printHistory(out io.Writer, renderer *ConsoleRenderer, msgs []conversation.Message) {
	for _, msg := range msgs {
		label := renderer.styles.User.Render("you")
		if msg.Role == conversation.RoleAssistant {
			label = renderer.styles.Assistant.Render("assistant")
		}
		fmt.Fprintln(out, label+" "+msg.Content)
	}
}

// readLines delivers stdin lines until EOF.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
