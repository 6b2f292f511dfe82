// Package reagent provides a high-level façade over the reasoning loop,
// tool registry, and model adapters for embedding a ReAct agent in a Go
// program without running the WebSocket service. Most applications interact
// with this package by:
//  1. Creating an Agent via New() with a model and optional tools
//  2. Registering additional function tools
//  3. Running messages asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates execution to react.Loop while keeping setup concise.
// All defaults are safe for local development and testing; the service in
// cmd/reagentd adds persistence and streaming on top of the same pieces.
package reagent

import (
	"context"
	"time"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/logging"
	"github.com/reagent-ai/reagent/model"
	"github.com/reagent-ai/reagent/react"
	"github.com/reagent-ai/reagent/reason"
	"github.com/reagent-ai/reagent/tool"
)

// Version is the library version.
const Version = "0.1.0"

// Options configures the Agent façade.
type Options struct {
	// Model generates reasoning steps. Defaults to a scripted mock, which is
	// only useful in tests; real callers supply an openai or anthropic model.
	Model model.Model

	// Persona replaces the default system persona line.
	Persona string

	// MaxIterations bounds the reason/act/observe cycles per run.
	MaxIterations int

	// Timeout is the wall-clock budget for one run. Zero disables it.
	Timeout time.Duration

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agent is the high-level façade aggregating the reasoning engine and a
// process-local tool catalog.
type Agent struct {
	opts   Options
	engine reason.Engine
	tools  *tool.Registry
	defs   []tool.Definition
	funcs  []*tool.FunctionTool
}

// New creates an Agent with optional overrides.
func New(optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:         model.NewMockModel(),
		MaxIterations: 5,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	engine := reason.NewStepEngine(opts.Model, func(o *reason.Options) {
		o.Persona = opts.Persona
		o.Logger = opts.Logger
	})

	return &Agent{
		opts:   opts,
		engine: engine,
		tools:  tool.NewRegistry(tool.StaticSource(nil)),
	}
}

// RegisterTool makes a function tool available to subsequent runs.
func (a *Agent) RegisterTool(t *tool.FunctionTool) {
	a.funcs = append(a.funcs, t)
	a.defs = append(a.defs, tool.Definition{
		Name:            t.Name(),
		Description:     t.Description(),
		ParameterSchema: t.Parameters(),
		Enabled:         true,
		Kind:            tool.KindFunction,
	})

	// The registry snapshots from a static catalog, so rebuild it with the
	// grown definition list.
	a.tools = tool.NewRegistry(tool.StaticSource(a.defs))
	for _, fn := range a.funcs {
		a.tools.RegisterFunction(fn)
	}
}

// Run starts an asynchronous run for the message, returning the event stream.
func (a *Agent) Run(ctx context.Context, sessionID, message string) (<-chan core.StepEvent, error) {
	snap, err := a.tools.Snapshot(ctx, "")
	if err != nil {
		return nil, err
	}

	loop := react.New(a.engine, snap, func(o *react.Options) {
		o.MaxIterations = a.opts.MaxIterations
		o.Timeout = a.opts.Timeout
		o.Logger = a.opts.Logger
	})

	state := core.NewRunState(sessionID, "", core.NewUserMessage(message), nil)
	return loop.Run(ctx, state)
}

// RunSync is a synchronous helper that drains the event stream and returns
// the final answer with the full trace.
func (a *Agent) RunSync(ctx context.Context, sessionID, message string) (string, []core.ReActStep, error) {
	events, err := a.Run(ctx, sessionID, message)
	if err != nil {
		return "", nil, err
	}

	var terminal core.StepEvent
	for ev := range events {
		if ev.Terminal() {
			terminal = ev
		}
	}

	if terminal.Kind == core.EventFailed {
		return "", terminal.Trace, terminal.Err
	}
	return terminal.FinalAnswer, terminal.Trace, nil
}
