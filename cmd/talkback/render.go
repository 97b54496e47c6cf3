package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/elee1766/talkback/src/conversation"
	"github.com/elee1766/talkback/src/theme"
	"github.com/elee1766/talkback/src/timeline"
)

// RendererConfig configures the console renderer
type RendererConfig struct {
	// RawMode prints only assistant text
	RawMode bool

	// EchoUser prints user messages, which shows what voice input was heard
	EchoUser bool

	// ShowLevels draws an input level meter while recording
	ShowLevels bool

	// Width bounds tool argument and transcript previews
	Width int
}

// ConsoleRenderer prints conversation view events to a terminal.
type ConsoleRenderer struct {
	out    io.Writer
	config RendererConfig
	styles theme.Styles

	mu         sync.Mutex
	midLine    bool
	meterShown bool
	voiceState conversation.VoiceState
}

// NewConsoleRenderer creates a renderer writing to out
func NewConsoleRenderer(out io.Writer, config RendererConfig) *ConsoleRenderer {
	if config.Width <= 0 {
		config.Width = 80
	}
	return &ConsoleRenderer{
		out:        out,
		config:     config,
		styles:     theme.NewStyles(theme.CurrentTheme),
		voiceState: conversation.VoiceIdle,
	}
}

// Process handles a single event
func (r *ConsoleRenderer) Process(event conversation.ViewEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.RawMode {
		switch e := event.(type) {
		case *conversation.AssistantChunkEvent:
			fmt.Fprint(r.out, e.Content)
		case *conversation.AssistantEndEvent:
			fmt.Fprintln(r.out)
		}
		return nil
	}

	switch e := event.(type) {
	case *conversation.UserMessageEvent:
		if r.config.EchoUser {
			r.line(r.styles.User.Render("you") + " " + e.Message.Content)
		}

	case *conversation.AssistantStartEvent:
		r.clearMeter()
		fmt.Fprint(r.out, r.styles.Assistant.Render("assistant")+" ")
		r.midLine = true

	case *conversation.AssistantChunkEvent:
		fmt.Fprint(r.out, e.Content)
		r.midLine = true

	case *conversation.AssistantEndEvent:
		r.endLine()
		switch e.Reason {
		case "cancelled":
			r.line(r.styles.Muted.Render("(cancelled)"))
		case "error":
			r.line(r.styles.Muted.Render("(incomplete)"))
		}

	case *conversation.ToolRunEvent:
		r.line(r.toolLine(e.Run))

	case *conversation.VoiceEvent:
		r.processVoice(e.Voice)

	case *conversation.TranscriptEvent:
		if e.Final {
			r.clearMeter()
			r.line(r.styles.Muted.Render("heard: " + r.truncate(e.Text, r.config.Width-7)))
		}

	case *conversation.PlaybackEvent:
		if e.Playback.Playing {
			r.line(r.styles.Muted.Render("speaking…"))
		}

	case *conversation.NoticeEvent:
		r.line(r.styles.Notice.Render(e.Message))

	case *conversation.ErrorEvent:
		r.line(r.styles.Failure.Render(fmt.Sprintf("error in %s: %v", e.Context, e.Error)))

	case *conversation.SessionStartedEvent:
		r.line(r.styles.Muted.Render("session " + e.SessionID))

	case *conversation.PhaseEvent, *conversation.StreamDataResetEvent:
	}

	return nil
}

// Close cleans up resources
func (r *ConsoleRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearMeter()
	r.endLine()
	return nil
}

func (r *ConsoleRenderer) processVoice(v conversation.VoiceSession) {
	if v.State != r.voiceState {
		r.voiceState = v.State
		r.clearMeter()
		switch v.State {
		case conversation.VoiceConnecting:
			r.line(r.styles.Muted.Render("connecting microphone…"))
		case conversation.VoiceRecording:
			r.line(r.styles.Running.Render("● recording") + r.styles.Muted.Render(" (/stop to send)"))
		case conversation.VoiceProcessing:
			r.line(r.styles.Muted.Render("transcribing…"))
		case conversation.VoiceIdle:
			if v.ErrorMessage != "" {
				r.line(r.styles.Failure.Render(v.ErrorMessage))
			}
		}
		return
	}
	if r.config.ShowLevels && v.State == conversation.VoiceRecording {
		r.endLine()
		fmt.Fprint(r.out, "\r"+levelMeter(r.styles, v.AudioLevel, 30))
		r.meterShown = true
	}
}

func (r *ConsoleRenderer) toolLine(run timeline.Run) string {
	var status string
	switch run.Status {
	case timeline.StatusRunning:
		status = r.styles.Running.Render("…")
	case timeline.StatusError:
		status = r.styles.Failure.Render("✗")
	case timeline.StatusCached:
		status = r.styles.Success.Render("✓ cached")
	default:
		status = r.styles.Success.Render("✓")
	}

	name := run.Tool
	if run.Server != "" {
		name = run.Server + "/" + name
	}
	text := "  ⚙ " + r.styles.Tool.Render(name)
	if run.Args != "" {
		args := strings.Join(strings.Fields(run.Args), " ")
		text += r.styles.Muted.Render(" " + r.truncate(args, r.config.Width/2))
	}
	text += " " + status
	if run.LatencyMs != nil {
		text += r.styles.Muted.Render(fmt.Sprintf(" %dms", *run.LatencyMs))
	}
	return text
}

func (r *ConsoleRenderer) truncate(s string, width int) string {
	if width < 8 {
		width = 8
	}
	return ansi.Truncate(s, width, "…")
}

// line prints s on its own line.
func (r *ConsoleRenderer) line(s string) {
	r.clearMeter()
	r.endLine()
	fmt.Fprintln(r.out, s)
}

func (r *ConsoleRenderer) endLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

func (r *ConsoleRenderer) clearMeter() {
	if r.meterShown {
		fmt.Fprint(r.out, "\r"+ansi.EraseEntireLine)
		r.meterShown = false
	}
}

// levelMeter draws level (0-100) as a bar width cells wide.
func levelMeter(styles theme.Styles, level, width int) string {
	level = max(0, min(100, level))
	filled := level * width / 100
	return styles.Meter.Render(strings.Repeat("█", filled)) + styles.Muted.Render(strings.Repeat("░", width-filled))
}
