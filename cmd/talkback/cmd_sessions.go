package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/elee1766/talkback/src/storage"
	"github.com/google/uuid"
)

// SessionsCmd manages stored sessions
type SessionsCmd struct {
	List   SessionsListCmd   `cmd:"" default:"1" help:"List sessions, most recent first"`
	Show   SessionsShowCmd   `cmd:"" help:"Print a session's messages and tool runs"`
	Create SessionsCreateCmd `cmd:"" help:"Create an empty session"`
	Rename SessionsRenameCmd `cmd:"" help:"Change a session's title"`
	Delete SessionsDeleteCmd `cmd:"" help:"Delete a session and its history"`
}

type SessionsListCmd struct {
	Limit int  `short:"n" default:"20" help:"Maximum sessions to list"`
	JSON  bool `help:"Print JSON"`
}

func (c *SessionsListCmd) Run(ctx context.Context, cli *CLI) error {
	db, err := openStore(ctx, cli)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := storage.ListSessions(ctx, db.DB(), c.Limit)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(os.Stdout, sessions, cli.Plain)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "UPDATED")
	for _, s := range sessions {
		t.Row(s.ID, s.Title, s.UpdatedAt.Local().Format(time.DateTime))
	}
	fmt.Println(t.String())
	return nil
}

type SessionsShowCmd struct {
	ID   string `arg:"" help:"Session ID"`
	JSON bool   `help:"Print JSON"`
}

func (c *SessionsShowCmd) Run(ctx context.Context, cli *CLI) error {
	db, err := openStore(ctx, cli)
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := storage.GetSessionByID(ctx, db.DB(), c.ID)
	if err != nil {
		return err
	}
	messages, err := storage.GetMessagesBySessionID(ctx, db.DB(), c.ID)
	if err != nil {
		return err
	}
	runs, err := storage.GetToolRunsBySessionID(ctx, db.DB(), c.ID)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(os.Stdout, map[string]any{
			"session":   session,
			"messages":  messages,
			"tool_runs": runs,
		}, cli.Plain)
	}

	renderer := NewConsoleRenderer(os.Stdout, RendererConfig{})
	title := session.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Println(renderer.styles.Muted.Render(session.ID + "  " + title))
	for _, msg := range messages {
		label := renderer.styles.User.Render(msg.Role)
		if msg.Role == "assistant" {
			label = renderer.styles.Assistant.Render(msg.Role)
		}
		fmt.Println(label + " " + msg.Content)
	}
	for _, run := range runs {
		line := fmt.Sprintf("  ⚙ %s/%s %s", run.Server, run.Tool, run.Status)
		if run.LatencyMs != nil {
			line += fmt.Sprintf(" %dms", *run.LatencyMs)
		}
		fmt.Println(renderer.styles.Tool.Render(line))
	}
	return nil
}

type SessionsCreateCmd struct {
	Title []string `arg:"" optional:"" help:"Session title"`
}

func (c *SessionsCreateCmd) Run(ctx context.Context, cli *CLI) error {
	db, err := openStore(ctx, cli)
	if err != nil {
		return err
	}
	defer db.Close()

	session := &storage.Session{
		ID:    uuid.NewString(),
		Title: strings.Join(c.Title, " "),
	}
	if err := storage.CreateSession(ctx, db.DB(), session); err != nil {
		return err
	}
	fmt.Println(session.ID)
	return nil
}

type SessionsRenameCmd struct {
	ID    string   `arg:"" help:"Session ID"`
	Title []string `arg:"" help:"New title"`
}

func (c *SessionsRenameCmd) Run(ctx context.Context, cli *CLI) error {
	db, err := openStore(ctx, cli)
	if err != nil {
		return err
	}
	defer db.Close()

	return storage.RenameSession(ctx, db.DB(), c.ID, strings.Join(c.Title, " "))
}

type SessionsDeleteCmd struct {
	IDs []string `arg:"" name:"id" help:"Session IDs"`
}

func (c *SessionsDeleteCmd) Run(ctx context.Context, cli *CLI) error {
	db, err := openStore(ctx, cli)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, id := range c.IDs {
		if err := storage.DeleteSession(ctx, db.DB(), id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		fmt.Println("deleted", id)
	}
	return nil
}
