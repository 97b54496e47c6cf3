package storage

import (
	"context"

	"github.com/elee1766/talkback/src/conversation"
	"github.com/elee1766/talkback/src/timeline"
)

var _ conversation.Store = (*Store)(nil)

// Store persists conversation history for a conversation.Machine.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSession(ctx context.Context, sessionID, title string) error {
	return UpsertSession(ctx, s.db.DB(), sessionID, title)
}

func (s *Store) SaveMessage(ctx context.Context, sessionID string, msg conversation.Message) error {
	err := CreateMessage(ctx, s.db.DB(), &Message{
		ID:           msg.ID,
		SessionID:    sessionID,
		Role:         string(msg.Role),
		Content:      msg.Content,
		ToolCallName: msg.ToolCallName,
		CreatedAt:    msg.CreatedAt,
	})
	if err != nil {
		return err
	}
	return TouchSession(ctx, s.db.DB(), sessionID)
}

func (s *Store) SaveToolRun(ctx context.Context, sessionID string, run timeline.Run) error {
	updates := make(JSONArray[ToolRunUpdate], 0, len(run.Updates))
	for _, u := range run.Updates {
		updates = append(updates, ToolRunUpdate{ID: u.ID, Status: string(u.Status), At: u.At})
	}
	return CreateToolRun(ctx, s.db.DB(), &ToolRun{
		ID:          run.ID,
		SessionID:   sessionID,
		Tool:        run.Tool,
		Server:      run.Server,
		Args:        run.Args,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		LatencyMs:   run.LatencyMs,
		Updates:     updates,
	})
}

// LoadMessages returns the stored history of sessionID. An unknown session
// has no history.
func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	rows, err := GetMessagesBySessionID(ctx, s.db.DB(), sessionID)
	if err != nil {
		return nil, err
	}
	msgs := make([]conversation.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, conversation.Message{
			ID:           row.ID,
			Role:         conversation.Role(row.Role),
			Content:      row.Content,
			CreatedAt:    row.CreatedAt,
			ToolCallName: row.ToolCallName,
		})
	}
	return msgs, nil
}
