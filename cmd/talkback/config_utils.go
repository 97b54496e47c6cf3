package main

import (
	"fmt"

	"github.com/elee1766/talkback/src/config"
	"github.com/spf13/afero"
)

// loadConfig loads the layered configuration and applies CLI flags on top.
func loadConfig(cli *CLI) (*config.Config, *config.Loader, error) {
	precedence := config.GetConfigPaths()
	if cli.ConfigFile != "" {
		precedence.UserConfig = cli.ConfigFile
	}

	loader := config.NewLoader(afero.NewOsFs(), precedence)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	overrideConfigFromCLI(cfg, cli)
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid command line flags: %w", err)
	}
	return cfg, loader, nil
}

// overrideConfigFromCLI overrides configuration values with CLI flags
func overrideConfigFromCLI(cfg *config.Config, cli *CLI) {
	if cli.BaseURL != "" {
		cfg.Server.BaseURL = cli.BaseURL
	}
	if cli.APIKey != "" {
		cfg.Server.APIKey = cli.APIKey
	}
	if cli.Database != "" {
		cfg.Storage.DatabasePath = cli.Database
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.NoTools {
		cfg.Conversation.ToolsEnabled = false
	}
}
