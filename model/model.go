package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/reagent-ai/reagent/core"
)

// Request captures the normalized model input produced by the reasoning engine.
// System carries the instruction prompt; Messages is the conversation in order.
type Request struct {
	System   string         `json:"system,omitempty"`
	Messages []core.Message `json:"messages"`
	Stream   bool           `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry an incremental text delta; the final chunk carries the full
// accumulated text plus the finish reason.
type Response struct {
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface the reasoning engine needs to drive
// generation. Implementations close both channels when generation ends;
// at most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Embedder converts text into a dense vector suitable for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RenderObservation formats a tool observation as plain conversation text.
// Provider adapters use this instead of native tool messages: the loop mints
// its own call ids, and providers reject tool results for calls they did not
// issue themselves.
func RenderObservation(msg core.Message) string {
	if msg.ToolName == "" {
		return fmt.Sprintf("Observation: %s", msg.Content)
	}
	return fmt.Sprintf("Observation from %s: %s", msg.ToolName, msg.Content)
}

// MockModel is a lightweight in-memory Model for tests and examples. Scripted
// completions are consumed in FIFO order, one per Generate call, so a single
// mock can drive a multi-turn reasoning loop deterministically.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	scripted []string
	requests []Request
}

// NewMockModel constructs a MockModel with the given scripted completions.
func NewMockModel(responses ...string) *MockModel {
	return &MockModel{
		info:     Info{Name: "mock", Provider: "mock"},
		scripted: responses,
	}
}

// Enqueue appends further scripted completions.
func (m *MockModel) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, responses...)
}

// Requests returns a copy of every Request seen so far, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount reports how many times Generate has been invoked.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockModel) next(req Request) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.scripted) == 0 {
		return "Mock response"
	}
	full := m.scripted[0]
	m.scripted = m.scripted[1:]
	return full
}

// Generate implements Model; emits optional word-level streaming chunks then
// the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		full := m.next(req)
		if req.Stream {
			for _, word := range strings.SplitAfter(full, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: word}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Text:         full,
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// MockEmbedder is a deterministic Embedder for tests: the vector is derived
// from the input bytes so equal texts embed identically.
type MockEmbedder struct {
	Dimensions int
}

// Embed implements Embedder.
func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := e.Dimensions
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	for i, b := range []byte(text) {
		vec[i%dims] += float32(b) / 255.0
	}
	return vec, nil
}
