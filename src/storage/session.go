package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

// GetSessionByID retrieves a session by its ID
func GetSessionByID(ctx context.Context, db sqlscan.Querier, sessionID string) (*Session, error) {
	query := `SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`
	var s Session
	err := sqlscan.Get(ctx, db, &s, query, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions, most recently updated first. limit <= 0
// returns all of them.
func ListSessions(ctx context.Context, db sqlscan.Querier, limit int) ([]Session, error) {
	query := `SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var sessions []Session
	if err := sqlscan.Select(ctx, db, &sessions, query, args...); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession creates a new session in the database
func CreateSession(ctx context.Context, db Execer, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	query := `INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, session.ID, session.Title, session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	return err
}

// UpsertSession creates the session if it is missing, otherwise bumps its
// updated_at. An existing non-empty title is kept.
func UpsertSession(ctx context.Context, db Execer, sessionID, title string) error {
	now := time.Now().UTC()
	query := `INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			title = CASE WHEN sessions.title = '' THEN excluded.title ELSE sessions.title END`
	_, err := db.ExecContext(ctx, query, sessionID, title, now, now)
	return err
}

// RenameSession sets a session's title.
func RenameSession(ctx context.Context, db Execer, sessionID, title string) error {
	query := `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, title, time.Now().UTC(), sessionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// TouchSession bumps a session's updated_at.
func TouchSession(ctx context.Context, db Execer, sessionID string) error {
	_, err := db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), sessionID)
	return err
}

// DeleteSession removes a session with its messages and tool runs.
func DeleteSession(ctx context.Context, db Execer, sessionID string) error {
	for _, query := range []string{
		`DELETE FROM tool_runs WHERE session_id = ?`,
		`DELETE FROM messages WHERE session_id = ?`,
	} {
		if _, err := db.ExecContext(ctx, query, sessionID); err != nil {
			return err
		}
	}
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
