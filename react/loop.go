package react

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/logging"
	"github.com/reagent-ai/reagent/reason"
	"github.com/reagent-ai/reagent/tool"
)

// phase enumerates the loop's states. One transition method per phase; each
// returns the next phase.
type phase int

const (
	phaseThink phase = iota
	phaseAct
	phaseObserve
	phaseEnd
)

// Options configure a Loop.
type Options struct {
	// MaxIterations bounds the number of reason/act/observe cycles before a
	// final answer is forced from the accumulated observations.
	MaxIterations int
	// Timeout is the wall-clock budget for one run. Zero disables it.
	Timeout time.Duration
	// EventBuffer sizes the event channel.
	EventBuffer int
	Logger      logging.Logger
}

// Loop drives one run through the Reason-Act-Observe state machine. It owns
// the run state for the duration of Run and emits every trace append, token
// chunk, and the terminal summary as events on the returned channel.
type Loop struct {
	engine  reason.Engine
	snap    *tool.Snapshot
	invoker *tool.Invoker
	logger  logging.Logger
	opts    Options
	started atomic.Bool
}

// New creates a Loop over a per-run tool catalog snapshot.
func New(engine reason.Engine, snap *tool.Snapshot, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxIterations: 5,
		Timeout:       2 * time.Minute,
		EventBuffer:   64,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Loop{
		engine:  engine,
		snap:    snap,
		invoker: tool.NewInvoker(snap, func(o *tool.InvokerOptions) { o.Logger = opts.Logger }),
		logger:  opts.Logger,
		opts:    opts,
	}
}

// Run executes the state machine on its own goroutine and returns the event
// channel. The channel is closed after the terminal (completed or failed)
// event. A Loop can run exactly once.
func (l *Loop) Run(ctx context.Context, state *core.RunState) (<-chan core.StepEvent, error) {
	if l.started.Swap(true) {
		return nil, fmt.Errorf("loop already consumed; create a new instance per run")
	}
	events := make(chan core.StepEvent, l.opts.EventBuffer)
	go func() {
		defer close(events)
		runCtx := ctx
		if l.opts.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
			defer cancel()
		}
		l.run(runCtx, state, events)
	}()
	return events, nil
}

func (l *Loop) run(ctx context.Context, state *core.RunState, events chan<- core.StepEvent) {
	l.logger.Info("react.run.start",
		"run_id", state.RunID, "session_id", state.SessionID,
		"max_iterations", l.opts.MaxIterations, "tools", l.snap.Len())

	ph := phaseThink
	for ph != phaseEnd {
		if err := ctx.Err(); err != nil {
			state.Fail(fmt.Errorf("run aborted: %w", err))
			break
		}
		switch ph {
		case phaseThink:
			ph = l.think(ctx, state, events)
		case phaseAct:
			ph = l.act(ctx, state, events)
		case phaseObserve:
			ph = l.observe(state, events)
		}
	}

	if state.Err != nil {
		l.logger.Error("react.run.failed",
			"run_id", state.RunID, "iterations", state.Iteration, "error", state.Err)
		events <- core.NewFailedEvent(state.RunID, state.Err, state.TraceCopy())
		return
	}
	l.logger.Info("react.run.complete",
		"run_id", state.RunID, "iterations", state.Iteration,
		"steps", len(state.Trace), "duration", time.Since(state.Started))
	events <- core.NewCompletedEvent(state.RunID, state.FinalAnswer, state.TraceCopy())
}

// think asks the reasoning engine for one step. When the iteration budget is
// spent the call is constrained to produce a final answer from what has been
// observed so far.
func (l *Loop) think(ctx context.Context, state *core.RunState, events chan<- core.StepEvent) phase {
	forceFinal := state.Iteration >= l.opts.MaxIterations

	outcome, err := l.engine.Step(ctx, reason.StepInput{
		Messages:   state.Messages,
		Trace:      state.Trace,
		Tools:      l.snap.Definitions(),
		ForceFinal: forceFinal,
		OnToken: func(text string) {
			events <- core.NewTokenEvent(state.RunID, text)
		},
	})
	if err != nil {
		if forceFinal || ctx.Err() != nil {
			state.Fail(err)
			return phaseEnd
		}
		// A transient model failure becomes an observation and consumes one
		// iteration, so a persistent outage still terminates via the budget.
		l.appendObservation(state, events,
			core.NewToolCallError("", "reasoning", err))
		state.Iteration++
		return phaseThink
	}

	if outcome.IsFinal() {
		thought := outcome.Final.Thought
		if thought == "" {
			thought = outcome.Final.Text
		}
		l.appendStep(state, events, core.NewThoughtStep(thought, "", nil))
		state.AppendMessage(core.NewAssistantMessage(outcome.Final.Text))
		state.Finish(outcome.Final.Text)
		return phaseEnd
	}

	th := outcome.Thought
	l.appendStep(state, events, core.NewThoughtStep(th.Text, th.ToolName, th.ToolArgs))

	if th.ToolName == "" {
		// Reasoning without an action makes no progress by itself; feed the
		// text back as context and spend one iteration.
		state.AppendMessage(core.NewAssistantMessage(th.Text))
		state.Iteration++
		return phaseThink
	}

	call := core.NewToolCallRequest(th.ToolName, th.ToolArgs)
	state.AppendMessage(core.NewAssistantMessage(renderAction(th)))

	if state.MarkIssued(call.Fingerprint()) {
		l.logger.Warn("react.call.repeated",
			"run_id", state.RunID, "tool", call.Name)
		l.appendObservation(state, events, core.NewToolCallError(call.ID, call.Name,
			fmt.Errorf("repeated call to %s with identical arguments rejected; vary the arguments or answer with what you have", call.Name)))
		state.Iteration++
		return phaseThink
	}

	state.PendingCall = &call
	return phaseAct
}

// act executes the pending tool call. The action step is recorded before the
// result is known so the trace captures intent even when execution fails.
func (l *Loop) act(ctx context.Context, state *core.RunState, events chan<- core.StepEvent) phase {
	call := *state.PendingCall
	l.appendStep(state, events, core.NewActionStep(call))

	results := l.invoker.ExecuteBatch(ctx, []core.ToolCallRequest{call})
	state.LastResult = &results[0]
	return phaseObserve
}

// observe folds the tool result back into the trace and conversation, spends
// one iteration, and hands control back to think.
func (l *Loop) observe(state *core.RunState, events chan<- core.StepEvent) phase {
	result := *state.LastResult
	l.appendObservation(state, events, result)
	state.PendingCall = nil
	state.LastResult = nil
	state.Iteration++
	return phaseThink
}

func (l *Loop) appendStep(state *core.RunState, events chan<- core.StepEvent, step core.ReActStep) {
	idx := state.AppendStep(step)
	events <- core.NewStepAppendEvent(state.RunID, idx, step)
}

// appendObservation records an observation step plus the tool-role message
// the next reasoning pass will see.
func (l *Loop) appendObservation(state *core.RunState, events chan<- core.StepEvent, result core.ToolCallResult) {
	l.appendStep(state, events, core.NewObservationStep(result))
	state.AppendMessage(core.NewToolMessage(result.ToolCallID, result.Name, result.Summary()))
}

// renderAction reconstructs the step text for the conversation, so the model
// sees its own prior reasoning and action on the next pass.
func renderAction(th *reason.Thought) string {
	args, err := json.Marshal(th.ToolArgs)
	if err != nil {
		args = []byte("{}")
	}
	return fmt.Sprintf("Thought: %s\nAction: %s\nAction Input: %s",
		th.Text, th.ToolName, args)
}
