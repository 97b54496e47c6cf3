package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/elee1766/talkback/src/theme"
)

// CLI represents the main CLI structure
type CLI struct {
	ConfigFile string `name:"config" short:"c" type:"path" help:"Config file to use in place of the user config"`
	BaseURL    string `help:"Backend base URL"`
	APIKey     string `help:"Backend API key"`
	Database   string `help:"Session database path"`
	LogLevel   string `help:"Log level (debug, info, warn, error)"`
	NoTools    bool   `help:"Disable tool usage"`
	Plain      bool   `help:"Disable colored JSON output"`
	Theme      string `enum:"dark,light" default:"dark" help:"Console color theme (dark, light)"`

	// Chat is the default command
	Chat ChatCmd `cmd:"" default:"withargs" help:"Start an interactive conversation (default)"`

	Prompt    PromptCmd   `cmd:"" help:"Send a single message and print the reply"`
	Sessions  SessionsCmd `cmd:"" help:"Manage stored sessions"`
	Migrate   MigrateCmd  `cmd:"" help:"Database migrations"`
	ConfigCmd ConfigCmd   `cmd:"" name:"config" help:"Show or initialize configuration"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("talkback"),
		kong.Description("Streaming chat and push-to-talk client for a conversation backend"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if t, ok := theme.ByName(cli.Theme); ok {
		theme.SetTheme(t)
	}

	err := kctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}
