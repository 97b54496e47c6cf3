package main

import (
	"context"
	"fmt"

	"github.com/elee1766/talkback/src/storage"
)

// openStore opens and migrates the configured session database.
func openStore(ctx context.Context, cli *CLI) (*storage.DB, error) {
	cfg, _, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Disabled {
		return nil, fmt.Errorf("%w: session storage is disabled", errUsage)
	}
	return storage.Open(ctx, cfg.Storage.DatabasePath)
}
