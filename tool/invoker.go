package tool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/internal/util"
	"github.com/reagent-ai/reagent/logging"
)

// Invoker executes tool calls against one catalog snapshot. Validation and
// dispatch failures surface as *Error; a panic inside a tool is recovered and
// converted, so a misbehaving tool can never take down the run.
type Invoker struct {
	snap        *Snapshot
	logger      logging.Logger
	maxParallel int
}

// InvokerOptions configure an Invoker.
type InvokerOptions struct {
	// Logger receives tool execution logs. Defaults to NoOpLogger.
	Logger logging.Logger
	// MaxParallel bounds batch concurrency. 0 or less means one goroutine
	// per call.
	MaxParallel int
}

// NewInvoker creates an invoker over a per-run snapshot.
func NewInvoker(snap *Snapshot, optFns ...func(o *InvokerOptions)) *Invoker {
	opts := InvokerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{snap: snap, logger: opts.Logger, maxParallel: opts.MaxParallel}
}

// Execute runs one tool call through the full contract: lookup, enabled
// check, required-parameter validation (naming the first missing field),
// dispatch, and failure wrapping.
func (inv *Invoker) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}

	def, impl, ok := inv.snap.Lookup(name)
	if !ok {
		return nil, NewError(name, fmt.Sprintf("tool %s not found", name), CodeNotFound)
	}
	if !def.Enabled {
		return nil, NewError(name, fmt.Sprintf("tool %s is disabled", name), CodeDisabled)
	}
	for _, field := range util.RequiredFields(def.ParameterSchema) {
		if _, present := args[field]; !present {
			return nil, NewError(name, fmt.Sprintf("missing required parameter %q", field), CodeMissingParameter)
		}
	}
	if impl == nil {
		return nil, NewError(name, fmt.Sprintf("tool %s has no registered implementation", name), CodeNotFound)
	}

	inv.logger.Debug("tool.call.start", "tool", name)
	start := time.Now()

	result, err := inv.dispatch(ctx, impl, args)
	dur := time.Since(start)

	if err != nil {
		inv.logger.Error("tool.call.failed", "tool", name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		if toolErr, ok := err.(*Error); ok {
			return nil, toolErr
		}
		return nil, NewError(name, err.Error(), CodeExecution)
	}

	inv.logger.Info("tool.call.complete", "tool", name, "duration_ms", dur.Milliseconds())
	return result, nil
}

// dispatch invokes the implementation with panic containment.
func (inv *Invoker) dispatch(ctx context.Context, impl Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("tool.call.panic", "tool", impl.Name(), "recover", fmt.Sprintf("%v", r))
			err = &panicErr{val: r, stack: debug.Stack()}
		}
	}()
	return impl.Call(ctx, args)
}

// ExecuteBatch runs the calls concurrently and returns one result per call in
// input order. A failure in one call never cancels or corrupts its siblings;
// it becomes a failure record in that call's slot.
func (inv *Invoker) ExecuteBatch(ctx context.Context, calls []core.ToolCallRequest) []core.ToolCallResult {
	n := len(calls)
	results := make([]core.ToolCallResult, n)
	if n == 0 {
		return results
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = inv.executeOne(ctx, calls[0])
		return results
	}

	maxPar := inv.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCallRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = inv.executeOne(ctx, call)
		}(i, calls[i])
	}
	wg.Wait()

	inv.logger.Debug(
		"tool.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return results
}

func (inv *Invoker) executeOne(ctx context.Context, call core.ToolCallRequest) core.ToolCallResult {
	result, err := inv.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return core.NewToolCallError(call.ID, call.Name, err)
	}
	return core.NewToolCallResult(call.ID, call.Name, result)
}

// panicErr converts a recovered panic value to an error while keeping the
// stack for logs.
type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
