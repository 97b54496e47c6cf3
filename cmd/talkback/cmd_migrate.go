package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/elee1766/talkback/src/storage"
)

// MigrateCmd manages the session database schema
type MigrateCmd struct {
	Up     MigrateUpCmd     `cmd:"" default:"1" help:"Apply pending migrations"`
	Status MigrateStatusCmd `cmd:"" help:"Show migration status"`
}

type MigrateUpCmd struct{}

func (c *MigrateUpCmd) Run(ctx context.Context, cli *CLI) error {
	db, err := connectStore(cli)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", db.Path(), err)
	}
	if len(results) == 0 {
		fmt.Println("database is up to date")
		return nil
	}
	for _, r := range results {
		fmt.Printf("applied %05d %s (%s)\n", r.Version, r.Path, r.Duration.Round(time.Millisecond))
	}
	return nil
}

type MigrateStatusCmd struct{}

func (c *MigrateStatusCmd) Run(ctx context.Context, cli *CLI) error {
	db, err := connectStore(cli)
	if err != nil {
		return err
	}
	defer db.Close()

	states, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("VERSION", "MIGRATION", "APPLIED")
	for _, s := range states {
		applied := "pending"
		if s.Applied {
			applied = s.AppliedAt.Local().Format(time.DateTime)
		}
		t.Row(fmt.Sprintf("%05d", s.Version), s.Path, applied)
	}
	fmt.Println(db.Path())
	fmt.Println(t.String())
	return nil
}

// connectStore opens the database without migrating it.
func connectStore(cli *CLI) (*storage.DB, error) {
	cfg, _, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}
	return storage.Connect(cfg.Storage.DatabasePath)
}
