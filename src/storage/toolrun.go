package storage

import (
	"context"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// GetToolRunsBySessionID retrieves a session's tool runs, oldest first.
func GetToolRunsBySessionID(ctx context.Context, db sqlscan.Querier, sessionID string) ([]ToolRun, error) {
	query := `SELECT id, session_id, tool, server, args, status, started_at, completed_at, latency_ms, updates
		FROM tool_runs WHERE session_id = ? ORDER BY started_at, rowid`
	var runs []ToolRun
	if err := sqlscan.Select(ctx, db, &runs, query, sessionID); err != nil {
		return nil, err
	}
	return runs, nil
}

// CreateToolRun records a tool run. A run already stored under the same
// session and ID is overwritten.
func CreateToolRun(ctx context.Context, db Execer, run *ToolRun) error {
	if run.Updates == nil {
		run.Updates = JSONArray[ToolRunUpdate]{}
	}
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	query := `INSERT INTO tool_runs (id, session_id, tool, server, args, status, started_at, completed_at, latency_ms, updates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			latency_ms = excluded.latency_ms,
			updates = excluded.updates`
	_, err := db.ExecContext(ctx, query,
		run.ID,
		run.SessionID,
		run.Tool,
		run.Server,
		run.Args,
		run.Status,
		run.StartedAt.UTC(),
		completedAt,
		run.LatencyMs,
		run.Updates,
	)
	return err
}
