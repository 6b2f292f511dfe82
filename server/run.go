package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/logging"
	"github.com/reagent-ai/reagent/model"
	"github.com/reagent-ai/reagent/model/anthropic"
	"github.com/reagent-ai/reagent/model/openai"
	"github.com/reagent-ai/reagent/react"
	"github.com/reagent-ai/reagent/reason"
	"github.com/reagent-ai/reagent/store"
	"github.com/reagent-ai/reagent/stream"
)

// ModelFactory builds a model for a resolved agent configuration.
type ModelFactory func(agent store.AgentConfig) (model.Model, error)

// handleMessage runs one full request/response cycle for an inbound client
// message. It returns only after the run's terminal frame has been sent, so
// the caller's read loop enforces per-connection ordering.
func (s *Server) handleMessage(sessionID, userID string, data []byte) {
	ctx := context.Background()

	in := stream.ParseInbound(data)
	if strings.TrimSpace(in.Message) == "" {
		s.dispatcher.SendError(sessionID, "message must not be empty", nil)
		return
	}
	s.dispatcher.SendAck(sessionID, in)

	agent, err := s.resolveAgent(ctx, in)
	if err != nil {
		s.dispatcher.SendError(sessionID, err.Error(), nil)
		return
	}
	s.dispatcher.SendAgentInfo(sessionID, agent.Name, agent.Type, agent.Provider, agent.Model)
	s.notifyOverrides(sessionID, in)

	s.runLoop(ctx, sessionID, userID, in, agent)
}

// resolveAgent picks the agent configuration for a run. An explicit agent_id
// must exist and be enabled; otherwise the store's default agent, then the
// server's fallback, is used. Per-message provider/model overrides apply last.
func (s *Server) resolveAgent(ctx context.Context, in stream.InboundMessage) (store.AgentConfig, error) {
	var agent store.AgentConfig

	switch {
	case in.AgentID != "":
		cfg, err := s.store.GetAgent(ctx, in.AgentID)
		if err != nil {
			return agent, fmt.Errorf("resolving agent: %w", err)
		}
		if cfg == nil || !cfg.Enabled {
			return agent, fmt.Errorf("agent %q not found or disabled", in.AgentID)
		}
		agent = *cfg
	default:
		cfg, err := s.store.GetAgent(ctx, s.opts.DefaultAgent.ID)
		if err != nil {
			return agent, fmt.Errorf("resolving agent: %w", err)
		}
		if cfg != nil && cfg.Enabled {
			agent = *cfg
		} else {
			agent = s.opts.DefaultAgent
		}
	}

	if in.Provider != "" {
		agent.Provider = in.Provider
	}
	if in.Model != "" {
		agent.Model = in.Model
	}
	return agent, nil
}

// notifyOverrides tells the client when a per-message provider or model
// override replaced the agent's configured values.
func (s *Server) notifyOverrides(sessionID string, in stream.InboundMessage) {
	if in.Provider != "" || in.Model != "" {
		s.dispatcher.SendInfo(sessionID, fmt.Sprintf("using provider=%s model=%s for this message", in.Provider, in.Model))
	}
}

// runLoop executes one reasoning run and persists its outcome. History,
// agent, and tool configuration are read fresh from the store at the start
// of every run. The outcome is persisted even when the client has already
// disconnected.
func (s *Server) runLoop(ctx context.Context, sessionID, userID string, in stream.InboundMessage, agent store.AgentConfig) {
	sess, err := s.store.GetOrCreateSession(ctx, sessionID, userID)
	if err != nil {
		s.dispatcher.SendError(sessionID, fmt.Sprintf("opening session: %v", err), nil)
		return
	}

	// History is loaded before the new user message is appended so the run
	// context holds prior turns followed by the current question.
	history, err := s.store.Messages(ctx, sessionID, s.opts.HistoryLimit)
	if err != nil {
		s.dispatcher.SendError(sessionID, fmt.Sprintf("loading history: %v", err), nil)
		return
	}

	userMsg := core.NewUserMessage(in.Message)
	state := core.NewRunState(sessionID, sess.UserID, userMsg, nil)
	if len(history) > 0 {
		prior := make([]core.Message, 0, len(history))
		for _, m := range history {
			prior = append(prior, m.Body)
		}
		state.Messages = append(prior, state.Messages...)
	}

	if err := s.store.AppendMessage(ctx, store.Message{
		ID:        core.NewID(),
		SessionID: sessionID,
		RunID:     state.RunID,
		Body:      userMsg,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		s.dispatcher.SendError(sessionID, fmt.Sprintf("persisting message: %v", err), nil)
		return
	}

	mdl, err := s.opts.ModelFactory(agent)
	if err != nil {
		s.dispatcher.SendError(sessionID, err.Error(), nil)
		return
	}

	snap, err := s.tools.Snapshot(ctx, agent.ID)
	if err != nil {
		s.dispatcher.SendError(sessionID, fmt.Sprintf("loading tools: %v", err), nil)
		return
	}

	engine := reason.NewStepEngine(mdl, func(o *reason.Options) {
		o.Persona = agent.SystemPrompt
		o.Logger = s.logger
	})

	maxIter := agent.MaxIterations
	if maxIter <= 0 {
		maxIter = s.opts.MaxIterations
	}
	loop := react.New(engine, snap, func(o *react.Options) {
		o.MaxIterations = maxIter
		o.Timeout = s.opts.RunTimeout
		o.Logger = s.logger
	})

	if err := s.store.CreateRun(ctx, store.RunRecord{
		RunID:     state.RunID,
		SessionID: sessionID,
		AgentID:   agent.ID,
		Status:    store.RunStatusRunning,
		StartedAt: state.Started,
	}); err != nil {
		s.dispatcher.SendError(sessionID, fmt.Sprintf("recording run: %v", err), nil)
		return
	}

	events, err := loop.Run(ctx, state)
	if err != nil {
		s.dispatcher.SendError(sessionID, err.Error(), nil)
		s.finishRun(ctx, state, agent.ID, core.StepEvent{Kind: core.EventFailed, Err: err})
		return
	}

	terminal := s.dispatcher.Forward(sessionID, agent.ID, events)
	s.finishRun(ctx, state, agent.ID, terminal)
}

// finishRun persists the run's terminal outcome and, on success, the
// assistant's reply as a conversation turn.
func (s *Server) finishRun(ctx context.Context, state *core.RunState, agentID string, terminal core.StepEvent) {
	rec := store.RunRecord{
		RunID:      state.RunID,
		SessionID:  state.SessionID,
		AgentID:    agentID,
		Trace:      terminal.Trace,
		Iterations: state.Iteration,
		StartedAt:  state.Started,
		EndedAt:    time.Now().UTC(),
	}

	switch terminal.Kind {
	case core.EventCompleted:
		rec.Status = store.RunStatusCompleted
		rec.FinalAnswer = terminal.FinalAnswer

		if err := s.store.AppendMessage(ctx, store.Message{
			ID:        core.NewID(),
			SessionID: state.SessionID,
			RunID:     state.RunID,
			Body:      core.NewAssistantMessage(terminal.FinalAnswer),
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Error("server.run.persist_reply_failed", "run_id", state.RunID, "error", err)
		}
	default:
		rec.Status = store.RunStatusFailed
		if terminal.Err != nil {
			rec.Error = terminal.Err.Error()
		}
	}

	if err := s.store.FinishRun(ctx, rec); err != nil {
		s.logger.Error("server.run.persist_failed", "run_id", state.RunID, "error", err)
		return
	}

	if rl, ok := s.logger.(*logging.RunLogger); ok {
		rl.WithRun(state.SessionID, state.RunID).LogRunComplete(len(rec.Trace), rec.Iterations, time.Since(state.Started), terminal.Err)
	} else {
		s.logger.Info("server.run.finished", "run_id", state.RunID, "status", rec.Status, "iterations", rec.Iterations)
	}
}

// defaultModelFactory builds SDK-backed models from the agent's provider.
func (s *Server) defaultModelFactory(agent store.AgentConfig) (model.Model, error) {
	switch agent.Provider {
	case "openai":
		var clientOpts []option.RequestOption
		if key := s.opts.APIKeys["openai"]; key != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(key))
		}
		client := openaisdk.NewClient(clientOpts...)
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			if agent.Model != "" {
				o.Model = agent.Model
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if agent.Model != "" {
				o.Model = anthropicsdk.Model(agent.Model)
			}
			o.APIKey = s.opts.APIKeys["anthropic"]
		}), nil
	case "mock":
		return model.NewMockModel(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", agent.Provider)
	}
}
