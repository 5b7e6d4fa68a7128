// Package store persists investigation records. It is the session-cache
// collaborator that outlives a single process: backends cover local files
// and Redis for multi-node deployments.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("store: record not found")

// Status is the persisted lifecycle state of an investigation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ToolCall is one persisted tool-activity entry.
type ToolCall struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// WorkerOutcome is one persisted sub-agent result.
type WorkerOutcome struct {
	AgentType string `json:"agent_type"`
	Analysis  string `json:"analysis,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Record is the persisted form of one investigation.
type Record struct {
	ID          string          `json:"id"`
	Query       string          `json:"query"`
	Model       string          `json:"model,omitempty"`
	Status      Status          `json:"status"`
	SessionID   string          `json:"session_id,omitempty"`
	Response    string          `json:"response,omitempty"`
	ToolsUsed   []ToolCall      `json:"tools_used,omitempty"`
	Subagents   []WorkerOutcome `json:"subagent_results,omitempty"`
	NumTurns    int             `json:"num_turns,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Backend stores investigation records. Implementations are safe for
// concurrent use.
type Backend interface {
	// Save writes or overwrites a record.
	Save(ctx context.Context, rec *Record) error

	// Load retrieves a record by id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Record, error)

	// List returns all records, newest first.
	List(ctx context.Context) ([]*Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
