package model

import (
	"context"
	"testing"

	"github.com/reagent-ai/reagent/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, respCh <-chan Response, errCh <-chan error) (Response, []string) {
	t.Helper()
	var final Response
	var partials []string
	for resp := range respCh {
		if resp.Partial {
			partials = append(partials, resp.Text)
			continue
		}
		final = resp
	}
	require.NoError(t, <-errCh)
	return final, partials
}

func TestMockModelScriptedOrder(t *testing.T) {
	m := NewMockModel("first", "second")
	msgs := []core.Message{core.NewUserMessage("hi")}

	respCh, errCh := m.Generate(context.Background(), Request{Messages: msgs})
	final, _ := drain(t, respCh, errCh)
	assert.Equal(t, "first", final.Text)

	respCh, errCh = m.Generate(context.Background(), Request{Messages: msgs})
	final, _ = drain(t, respCh, errCh)
	assert.Equal(t, "second", final.Text)

	// Queue exhausted: fall back to the default completion.
	respCh, errCh = m.Generate(context.Background(), Request{Messages: msgs})
	final, _ = drain(t, respCh, errCh)
	assert.Equal(t, "Mock response", final.Text)
	assert.Equal(t, 3, m.CallCount())
}

func TestMockModelStreamingChunks(t *testing.T) {
	m := NewMockModel("hello streaming world")
	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewUserMessage("hi")},
		Stream:   true,
	})
	final, partials := drain(t, respCh, errCh)
	assert.Equal(t, "hello streaming world", final.Text)
	require.NotEmpty(t, partials)
	var joined string
	for _, p := range partials {
		joined += p
	}
	assert.Equal(t, final.Text, joined)
}

func TestMockModelEmptyRequest(t *testing.T) {
	m := NewMockModel()
	respCh, errCh := m.Generate(context.Background(), Request{})
	for range respCh {
	}
	assert.Error(t, <-errCh)
}

func TestMockModelRecordsRequests(t *testing.T) {
	m := NewMockModel("ok")
	req := Request{
		System:   "you are a test",
		Messages: []core.Message{core.NewUserMessage("question")},
	}
	respCh, errCh := m.Generate(context.Background(), req)
	drain(t, respCh, errCh)

	seen := m.Requests()
	require.Len(t, seen, 1)
	assert.Equal(t, "you are a test", seen[0].System)
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := &MockEmbedder{Dimensions: 4}
	a, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 4)
}
