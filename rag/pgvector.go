package rag

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/logging"
	"github.com/reagent-ai/reagent/model"
)

// PGEngine implements Engine and Indexer on PostgreSQL with the pgvector
// extension. Query text is embedded through the configured Embedder and
// ranked by cosine distance.
type PGEngine struct {
	pool     *pgxpool.Pool
	embedder model.Embedder
	logger   logging.Logger
	opts     PGOptions
}

// PGOptions configure a PGEngine.
type PGOptions struct {
	// Table holds the indexed chunks. Defaults to "knowledge_chunks".
	Table string
	// Dimensions of the stored vectors; must match the embedder.
	Dimensions int
	Logger     logging.Logger
}

// NewPGEngine creates an engine over an existing connection pool.
func NewPGEngine(pool *pgxpool.Pool, embedder model.Embedder, optFns ...func(o *PGOptions)) *PGEngine {
	opts := PGOptions{Table: "knowledge_chunks", Dimensions: 1536, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &PGEngine{pool: pool, embedder: embedder, logger: opts.Logger, opts: opts}
}

// EnsureSchema creates the extension and chunk table if missing. Called once
// at process start.
func (e *PGEngine) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, e.opts.Table, e.opts.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
			USING hnsw (embedding vector_cosine_ops)`, e.opts.Table, e.opts.Table),
	}
	for _, stmt := range stmts {
		if _, err := e.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Index embeds content and stores it as one chunk.
func (e *PGEngine) Index(ctx context.Context, content string, metadata map[string]any) error {
	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}
	_, err = e.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding) VALUES ($1, $2, $3, $4)`, e.opts.Table),
		core.NewID(), content, metadata, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// Query implements Engine using cosine similarity.
func (e *PGEngine) Query(ctx context.Context, text string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qvec := pgvector.NewVector(vec)

	rows, err := e.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
			FROM %s
			ORDER BY embedding <=> $1
			LIMIT $2`, e.opts.Table),
		qvec, topK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Metadata, &c.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	e.logger.Debug("rag.query.complete", "results", len(out), "top_k", topK)
	return out, nil
}
