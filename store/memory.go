package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/tool"
)

// MemoryStore implements Store in process memory. Used by tests and the
// runnable examples; data does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]Message // keyed by session id, append order
	runs     map[string]*RunRecord
	agents   map[string]AgentConfig
	tools    map[string]tool.Definition
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*Session{},
		messages: map[string][]Message{},
		runs:     map[string]*RunRecord{},
		agents:   map[string]AgentConfig{},
		tools:    map[string]tool.Definition{},
	}
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

// GetOrCreateSession implements Store.
func (m *MemoryStore) GetOrCreateSession(_ context.Context, sessionID, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		cp := *sess
		return &cp, nil
	}
	sess := &Session{ID: sessionID, UserID: userID, CreatedAt: time.Now().UTC()}
	m.sessions[sessionID] = sess
	cp := *sess
	return &cp, nil
}

// AppendMessage implements Store.
func (m *MemoryStore) AppendMessage(_ context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

// Messages implements Store; returns the last limit turns in order.
func (m *MemoryStore) Messages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CreateRun implements Store.
func (m *MemoryStore) CreateRun(_ context.Context, rec RunRecord) error {
	if rec.Status == "" {
		rec.Status = RunStatusRunning
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rec.RunID] = &rec
	return nil
}

// FinishRun implements Store.
func (m *MemoryStore) FinishRun(_ context.Context, rec RunRecord) error {
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.runs[rec.RunID]; ok {
		rec.SessionID = existing.SessionID
		rec.AgentID = existing.AgentID
		rec.StartedAt = existing.StartedAt
	}
	m.runs[rec.RunID] = &rec
	return nil
}

// GetRun implements Store.
func (m *MemoryStore) GetRun(_ context.Context, runID string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// UpsertAgent implements Store.
func (m *MemoryStore) UpsertAgent(_ context.Context, cfg AgentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[cfg.ID] = cfg
	return nil
}

// GetAgent implements Store.
func (m *MemoryStore) GetAgent(_ context.Context, id string) (*AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.agents[id]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// ListAgents implements Store.
func (m *MemoryStore) ListAgents(_ context.Context) ([]AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AgentConfig, 0, len(m.agents))
	for _, cfg := range m.agents {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertTool implements Store.
func (m *MemoryStore) UpsertTool(_ context.Context, def tool.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[def.Name] = def
	return nil
}

// ListTools implements Store and tool.Source.
func (m *MemoryStore) ListTools(context.Context) ([]tool.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tool.Definition, 0, len(m.tools))
	for _, def := range m.tools {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
