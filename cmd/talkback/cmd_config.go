package main

import (
	"context"
	"fmt"
	"os"

	"github.com/elee1766/talkback/src/config"
	"github.com/spf13/afero"
)

// ConfigCmd shows or initializes configuration
type ConfigCmd struct {
	Show   ConfigShowCmd   `cmd:"" default:"1" help:"Print the effective configuration"`
	Init   ConfigInitCmd   `cmd:"" help:"Write a default user configuration"`
	Schema ConfigSchemaCmd `cmd:"" help:"Print the JSON Schema of the configuration file"`
}

type ConfigShowCmd struct {
	Sources bool `help:"Also list the files and overrides that were applied"`
	Diff    bool `help:"Print only what differs from the defaults, as a unified diff"`
}

func (c *ConfigShowCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, loader, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Sources {
		for _, src := range loader.Sources() {
			if src.Path != "" {
				fmt.Fprintf(os.Stderr, "%-12s %s\n", src.Source, src.Path)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", src.Source)
			}
		}
	}

	if c.Diff {
		diff, err := config.Diff(cfg)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Println("configuration matches the defaults")
			return nil
		}
		return writeHighlighted(os.Stdout, diff+"\n", "diff", cli.Plain)
	}
	return writeJSON(os.Stdout, cfg.Redacted(), cli.Plain)
}

type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" type:"path" help:"Where to write the file (default: user config path)"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run(ctx context.Context, cli *CLI) error {
	path := c.Path
	if path == "" {
		path = config.GetConfigPaths().UserConfig
		if cli.ConfigFile != "" {
			path = cli.ConfigFile
		}
	}

	loader := config.NewLoader(afero.NewOsFs(), config.GetConfigPaths())
	if err := loader.Init(path, c.Force); err != nil {
		return err
	}
	fmt.Println("wrote", path)
	return nil
}

type ConfigSchemaCmd struct{}

func (c *ConfigSchemaCmd) Run(ctx context.Context, cli *CLI) error {
	data, err := config.Schema()
	if err != nil {
		return err
	}
	return writeHighlighted(os.Stdout, string(data)+"\n", "json", cli.Plain)
}
