package storage

import "time"

type Session struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Message struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	Role         string    `json:"role" db:"role"`
	Content      string    `json:"content" db:"content"`
	ToolCallName string    `json:"tool_call_name,omitempty" db:"tool_call_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ToolRun is one completed tool invocation. Updates holds the intermediate
// status changes in arrival order.
type ToolRun struct {
	ID          string                   `json:"id" db:"id"`
	SessionID   string                   `json:"session_id" db:"session_id"`
	Tool        string                   `json:"tool" db:"tool"`
	Server      string                   `json:"server" db:"server"`
	Args        string                   `json:"args" db:"args"`
	Status      string                   `json:"status" db:"status"`
	StartedAt   time.Time                `json:"started_at" db:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty" db:"completed_at"`
	LatencyMs   *int64                   `json:"latency_ms,omitempty" db:"latency_ms"`
	Updates     JSONArray[ToolRunUpdate] `json:"updates" db:"updates"`
}

type ToolRunUpdate struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}
