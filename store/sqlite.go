package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/tool"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and applies the
// schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			run_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT,
			tool_call_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_id TEXT,
			status TEXT NOT NULL,
			final_answer TEXT,
			error TEXT,
			trace TEXT,
			iterations INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'react',
			provider TEXT,
			model TEXT,
			system_prompt TEXT,
			max_iterations INTEGER NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS tools (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			parameter_schema TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			assigned_agents TEXT,
			kind TEXT NOT NULL DEFAULT 'function',
			http_spec TEXT
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// GetSession retrieves a session; nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at, metadata FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &sess.Metadata)
	}
	return &sess, nil
}

// GetOrCreateSession returns the existing session or creates it.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	sess = &Session{ID: sessionID, UserID: userID, CreatedAt: time.Now().UTC()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at) VALUES (?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendMessage persists one conversation turn.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, run_id, role, content, tool_name, tool_call_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.RunID, string(msg.Body.Role), msg.Body.Content,
		msg.Body.ToolName, msg.Body.ToolCallID, msg.CreatedAt)
	return err
}

// Messages returns the most recent turns in chronological order. limit <= 0
// returns everything.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `SELECT message_id, session_id, run_id, role, content, tool_name, tool_call_id, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at DESC, message_id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var runID, toolName, toolCallID sql.NullString
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &runID, &role, &m.Body.Content,
			&toolName, &toolCallID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.RunID = runID.String
		m.Body.Role = core.Role(role)
		m.Body.ToolName = toolName.String
		m.Body.ToolCallID = toolCallID.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CreateRun inserts the run in its initial state.
func (s *SQLiteStore) CreateRun(ctx context.Context, rec RunRecord) error {
	if rec.Status == "" {
		rec.Status = RunStatusRunning
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, agent_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.SessionID, rec.AgentID, rec.Status, rec.StartedAt)
	return err
}

// FinishRun records the terminal state and the full trace.
func (s *SQLiteStore) FinishRun(ctx context.Context, rec RunRecord) error {
	trace, err := json.Marshal(rec.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, final_answer = ?, error = ?, trace = ?, iterations = ?, ended_at = ?
		 WHERE run_id = ?`,
		rec.Status, rec.FinalAnswer, rec.Error, string(trace), rec.Iterations, rec.EndedAt, rec.RunID)
	return err
}

// GetRun retrieves a run audit record; nil when absent.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	var finalAnswer, errText, trace, agentID sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, session_id, agent_id, status, final_answer, error, trace, iterations, started_at, ended_at
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&rec.RunID, &rec.SessionID, &agentID, &rec.Status, &finalAnswer,
			&errText, &trace, &rec.Iterations, &rec.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.AgentID = agentID.String
	rec.FinalAnswer = finalAnswer.String
	rec.Error = errText.String
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	if trace.Valid && trace.String != "" {
		if err := json.Unmarshal([]byte(trace.String), &rec.Trace); err != nil {
			return nil, fmt.Errorf("unmarshal trace: %w", err)
		}
	}
	return &rec, nil
}

// UpsertAgent inserts or replaces an agent configuration.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, cfg AgentConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO agents (agent_id, name, type, provider, model, system_prompt, max_iterations, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, cfg.Type, cfg.Provider, cfg.Model, cfg.SystemPrompt,
		cfg.MaxIterations, boolToInt(cfg.Enabled))
	return err
}

// GetAgent retrieves an agent configuration; nil when absent.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*AgentConfig, error) {
	var cfg AgentConfig
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, type, provider, model, system_prompt, max_iterations, enabled
		 FROM agents WHERE agent_id = ?`, id).
		Scan(&cfg.ID, &cfg.Name, &cfg.Type, &cfg.Provider, &cfg.Model,
			&cfg.SystemPrompt, &cfg.MaxIterations, &enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Enabled = enabled != 0
	return &cfg, nil
}

// ListAgents returns every agent configuration, name order.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]AgentConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, name, type, provider, model, system_prompt, max_iterations, enabled
		 FROM agents ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentConfig
	for rows.Next() {
		var cfg AgentConfig
		var enabled int
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Type, &cfg.Provider, &cfg.Model,
			&cfg.SystemPrompt, &cfg.MaxIterations, &enabled); err != nil {
			return nil, err
		}
		cfg.Enabled = enabled != 0
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// UpsertTool inserts or replaces a tool definition.
func (s *SQLiteStore) UpsertTool(ctx context.Context, def tool.Definition) error {
	schema, err := json.Marshal(def.ParameterSchema)
	if err != nil {
		return fmt.Errorf("marshal parameter schema: %w", err)
	}
	agents, err := json.Marshal(def.AssignedAgents)
	if err != nil {
		return fmt.Errorf("marshal assigned agents: %w", err)
	}
	var httpSpec []byte
	if def.HTTP != nil {
		if httpSpec, err = json.Marshal(def.HTTP); err != nil {
			return fmt.Errorf("marshal http spec: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tools (name, description, parameter_schema, enabled, assigned_agents, kind, http_spec)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		def.Name, def.Description, string(schema), boolToInt(def.Enabled),
		string(agents), string(def.Kind), nullableString(httpSpec))
	return err
}

// ListTools returns the full tool catalog. Satisfies tool.Source, so a
// Registry can read its per-run snapshots straight from the store.
func (s *SQLiteStore) ListTools(ctx context.Context) ([]tool.Definition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, parameter_schema, enabled, assigned_agents, kind, http_spec
		 FROM tools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tool.Definition
	for rows.Next() {
		var def tool.Definition
		var schema, agents, httpSpec sql.NullString
		var enabled int
		var kind string
		if err := rows.Scan(&def.Name, &def.Description, &schema, &enabled,
			&agents, &kind, &httpSpec); err != nil {
			return nil, err
		}
		def.Enabled = enabled != 0
		def.Kind = tool.Kind(kind)
		if schema.Valid && schema.String != "" {
			_ = json.Unmarshal([]byte(schema.String), &def.ParameterSchema)
		}
		if agents.Valid && agents.String != "" {
			_ = json.Unmarshal([]byte(agents.String), &def.AssignedAgents)
		}
		if httpSpec.Valid && httpSpec.String != "" {
			def.HTTP = &tool.HTTPSpec{}
			_ = json.Unmarshal([]byte(httpSpec.String), def.HTTP)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
