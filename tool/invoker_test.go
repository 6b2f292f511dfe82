package tool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reagent-ai/reagent/core"
)

func batchInvoker(t *testing.T) (*Invoker, *atomic.Int32) {
	t.Helper()
	var executions atomic.Int32

	src := StaticSource{
		{Name: "slow", Kind: KindFunction, Enabled: true, ParameterSchema: map[string]any{"type": "object"}},
		{Name: "fast", Kind: KindFunction, Enabled: true, ParameterSchema: map[string]any{"type": "object"}},
		{Name: "failing", Kind: KindFunction, Enabled: true, ParameterSchema: map[string]any{"type": "object"}},
	}
	reg := NewRegistry(src)
	reg.RegisterFunction(NewFunctionTool("slow", "Slow", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			executions.Add(1)
			time.Sleep(30 * time.Millisecond)
			return "slow-done", nil
		}))
	reg.RegisterFunction(NewFunctionTool("fast", "Fast", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			executions.Add(1)
			return "fast-done", nil
		}))
	reg.RegisterFunction(NewFunctionTool("failing", "Fails", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			executions.Add(1)
			panic("isolated failure")
		}))

	snap, err := reg.Snapshot(context.Background(), "assistant")
	require.NoError(t, err)
	return NewInvoker(snap), &executions
}

func TestExecuteBatch_PreservesInputOrder(t *testing.T) {
	inv, _ := batchInvoker(t)

	calls := []core.ToolCallRequest{
		core.NewToolCallRequest("slow", nil),
		core.NewToolCallRequest("fast", nil),
		core.NewToolCallRequest("slow", nil),
	}
	results := inv.ExecuteBatch(context.Background(), calls)

	require.Len(t, results, len(calls))
	for i, res := range results {
		assert.Equal(t, calls[i].ID, res.ToolCallID)
		assert.Equal(t, calls[i].Name, res.Name)
		assert.False(t, res.Failed())
	}
	assert.Equal(t, "slow-done", results[0].Result)
	assert.Equal(t, "fast-done", results[1].Result)
}

func TestExecuteBatch_IsolatesFailures(t *testing.T) {
	inv, executions := batchInvoker(t)

	calls := []core.ToolCallRequest{
		core.NewToolCallRequest("fast", nil),
		core.NewToolCallRequest("failing", nil),
		core.NewToolCallRequest("fast", nil),
	}
	results := inv.ExecuteBatch(context.Background(), calls)

	require.Len(t, results, 3)
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.False(t, results[2].Failed())
	// The failing sibling must not have suppressed the others.
	assert.Equal(t, int32(3), executions.Load())

	// Exactly one of result/error per record.
	for _, res := range results {
		if res.Failed() {
			assert.Nil(t, res.Result)
			assert.NotEmpty(t, res.Error)
		} else {
			assert.NotNil(t, res.Result)
			assert.Empty(t, res.Error)
		}
	}
}

func TestExecuteBatch_Empty(t *testing.T) {
	inv, _ := batchInvoker(t)
	assert.Empty(t, inv.ExecuteBatch(context.Background(), nil))
}

func TestExecuteBatch_BoundedParallelism(t *testing.T) {
	inv, _ := batchInvoker(t)
	inv.maxParallel = 1

	calls := []core.ToolCallRequest{
		core.NewToolCallRequest("slow", nil),
		core.NewToolCallRequest("slow", nil),
	}
	start := time.Now()
	results := inv.ExecuteBatch(context.Background(), calls)
	elapsed := time.Since(start)

	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond, "serialized execution with maxParallel=1")
}
