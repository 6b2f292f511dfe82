package rag

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/model"
)

// MemoryEngine implements Engine and Indexer over an in-process slice with
// exact cosine similarity. Suitable for tests, examples and tiny corpora.
type MemoryEngine struct {
	mu       sync.RWMutex
	embedder model.Embedder
	chunks   []memoryChunk
}

type memoryChunk struct {
	id       string
	content  string
	metadata map[string]any
	vector   []float32
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine(embedder model.Embedder) *MemoryEngine {
	return &MemoryEngine{embedder: embedder}
}

// Index implements Indexer.
func (e *MemoryEngine) Index(ctx context.Context, content string, metadata map[string]any) error {
	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunks = append(e.chunks, memoryChunk{
		id:       core.NewID(),
		content:  content,
		metadata: metadata,
		vector:   vec,
	})
	return nil
}

// Query implements Engine.
func (e *MemoryEngine) Query(ctx context.Context, text string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	qvec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	scored := make([]Chunk, 0, len(e.chunks))
	for _, c := range e.chunks {
		scored = append(scored, Chunk{
			ID:       c.id,
			Content:  c.content,
			Score:    cosineSimilarity(qvec, c.vector),
			Metadata: c.metadata,
		})
	}
	e.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Len returns the number of indexed chunks.
func (e *MemoryEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.chunks)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
