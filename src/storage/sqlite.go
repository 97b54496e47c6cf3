package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type DB struct {
	path string
	db   *sql.DB
}

// Open connects to the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	d, err := Connect(path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return d, nil
}

// Connect opens the database without touching its schema.
func Connect(path string) (*DB, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection keeps writers from
	// tripping over each other.
	db.SetMaxOpenConns(1)

	return &DB{path: path, db: db}, nil
}

func (d *DB) DB() *sql.DB {
	return d.db
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	return d.db.Close()
}

// MigrationResult reports one applied migration.
type MigrationResult struct {
	Version  int64
	Path     string
	Duration time.Duration
}

// MigrationState reports whether a known migration has been applied.
type MigrationState struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

func (d *DB) provider() (*goose.Provider, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, d.db, fsys)
}

// Migrate applies all pending migrations.
func (d *DB) Migrate(ctx context.Context) ([]MigrationResult, error) {
	p, err := d.provider()
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationResult, 0, len(results))
	for _, r := range results {
		out = append(out, MigrationResult{Version: r.Source.Version, Path: r.Source.Path, Duration: r.Duration})
	}
	return out, nil
}

// MigrationStatus lists every known migration in version order.
func (d *DB) MigrationStatus(ctx context.Context) ([]MigrationState, error) {
	p, err := d.provider()
	if err != nil {
		return nil, err
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}
