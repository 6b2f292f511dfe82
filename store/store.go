// Package store defines persistence for sessions, chat history, agent and
// tool configuration, and completed run audit records, with SQLite and
// in-memory implementations.
package store

import (
	"context"
	"time"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/tool"
)

// Session is one addressable conversation.
type Session struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Message is a persisted conversation turn.
type Message struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	RunID     string       `json:"run_id,omitempty"`
	Body      core.Message `json:"body"`
	CreatedAt time.Time    `json:"created_at"`
}

// Run lifecycle states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is the audit record of one loop execution. The full trace is
// stored so a run can be replayed and diagnosed after the fact.
type RunRecord struct {
	RunID       string           `json:"run_id"`
	SessionID   string           `json:"session_id"`
	AgentID     string           `json:"agent_id"`
	Status      string           `json:"status"`
	FinalAnswer string           `json:"final_answer,omitempty"`
	Error       string           `json:"error,omitempty"`
	Trace       []core.ReActStep `json:"trace,omitempty"`
	Iterations  int              `json:"iterations"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     time.Time        `json:"ended_at,omitempty"`
}

// AgentConfig is one configured agent personality.
type AgentConfig struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"` // "react"
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Enabled       bool   `json:"enabled"`
}

// Store is the persistence surface the server depends on. Get operations
// return nil (not an error) when the record does not exist. Store also acts
// as the tool catalog source: ListTools satisfies tool.Source.
type Store interface {
	// Sessions and chat history.
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	AppendMessage(ctx context.Context, msg Message) error
	Messages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// Run audit records.
	CreateRun(ctx context.Context, rec RunRecord) error
	FinishRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// Agent configuration.
	UpsertAgent(ctx context.Context, cfg AgentConfig) error
	GetAgent(ctx context.Context, id string) (*AgentConfig, error)
	ListAgents(ctx context.Context) ([]AgentConfig, error)

	// Tool catalog; ListTools implements tool.Source.
	UpsertTool(ctx context.Context, def tool.Definition) error
	ListTools(ctx context.Context) ([]tool.Definition, error)

	Close() error
}
