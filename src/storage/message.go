package storage

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

// GetMessagesBySessionID retrieves all messages for a session in the order
// they were written.
func GetMessagesBySessionID(ctx context.Context, db sqlscan.Querier, sessionID string) ([]Message, error) {
	query := `SELECT id, session_id, role, content, tool_call_name, created_at FROM messages WHERE session_id = ? ORDER BY created_at, rowid`
	var messages []Message
	err := sqlscan.Select(ctx, db, &messages, query, sessionID)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CreateMessage creates a message, replacing the content of an existing
// message with the same ID.
func CreateMessage(ctx context.Context, db Execer, message *Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	query := `INSERT INTO messages (id, session_id, role, content, tool_call_name, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, tool_call_name = excluded.tool_call_name`
	_, err := db.ExecContext(ctx, query, message.ID, message.SessionID, message.Role, message.Content, message.ToolCallName, message.CreatedAt.UTC())
	return err
}
