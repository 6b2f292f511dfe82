// Package rag exposes retrieval as a capability: given a query, return
// ranked text chunks with similarity scores. The loop consumes it through
// the knowledge_search tool; backends are pgvector (production) and an
// in-memory index (tests, examples).
package rag

import "context"

// Chunk is one retrieved snippet with its similarity score (higher is
// closer).
type Chunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Engine answers similarity queries over an indexed corpus.
type Engine interface {
	// Query returns up to topK chunks ranked by similarity to text.
	Query(ctx context.Context, text string, topK int) ([]Chunk, error)
}

// Indexer is implemented by engines that also ingest content.
type Indexer interface {
	Index(ctx context.Context, content string, metadata map[string]any) error
}

// DefaultTopK bounds a query when the caller passes topK <= 0.
const DefaultTopK = 5
