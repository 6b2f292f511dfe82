package stream

import (
	"bytes"
	"encoding/json"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/hub"
	"github.com/reagent-ai/reagent/logging"
)

// Dispatcher forwards run events to one addressed live connection, translated
// into wire messages. A failed send is logged and not retried; connection
// cleanup belongs to disconnect handling, and the run itself continues so its
// result can still be persisted.
type Dispatcher struct {
	registry *hub.Registry
	logger   logging.Logger
}

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	Logger logging.Logger
}

// NewDispatcher creates a dispatcher over the connection registry.
func NewDispatcher(registry *hub.Registry, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Dispatcher{registry: registry, logger: opts.Logger}
}

// SendAck confirms receipt of a client message.
func (d *Dispatcher) SendAck(sessionID string, in InboundMessage) {
	d.send(sessionID, AckMessage{
		Base:     newBase(TypeAck),
		Message:  in.Message,
		AgentID:  in.AgentID,
		Provider: in.Provider,
		Model:    in.Model,
	})
}

// SendAgentInfo announces the resolved agent for the upcoming run.
func (d *Dispatcher) SendAgentInfo(sessionID, agentName, agentType, provider, model string) {
	d.send(sessionID, AgentInfoMessage{
		Base:      newBase(TypeAgentInfo),
		AgentName: agentName,
		AgentType: agentType,
		Provider:  provider,
		Model:     model,
	})
}

// SendInfo sends out-of-band informational text.
func (d *Dispatcher) SendInfo(sessionID, text string) {
	d.send(sessionID, InfoMessage{Base: newBase(TypeInfo), Message: text})
}

// SendError reports a fatal condition, with the partial trace when available.
func (d *Dispatcher) SendError(sessionID, errText string, trace []core.ReActStep) {
	d.send(sessionID, ErrorMessage{
		Base:       newBase(TypeError),
		Error:      errText,
		ReactTrace: trace,
	})
}

// Forward drains the run's event channel, translating and sending each event
// in order, and returns the terminal event. It always consumes the channel to
// the end even when the connection is gone, so the caller can persist the
// run's outcome regardless of client lifetime.
func (d *Dispatcher) Forward(sessionID, agentID string, events <-chan core.StepEvent) core.StepEvent {
	var terminal core.StepEvent
	for ev := range events {
		if ev.Terminal() {
			terminal = ev
		}
		d.send(sessionID, d.translate(ev, agentID))
	}
	return terminal
}

// translate maps one run event onto its wire message.
func (d *Dispatcher) translate(ev core.StepEvent, agentID string) any {
	switch ev.Kind {
	case core.EventToken:
		return StreamMessage{Base: newBase(TypeStream), Content: ev.Token}

	case core.EventCompleted:
		return CompleteMessage{
			Base:         newBase(TypeComplete),
			FullResponse: ev.FinalAnswer,
			ReactTrace:   ev.Trace,
			AgentID:      agentID,
			TotalSteps:   len(ev.Trace),
		}

	case core.EventFailed:
		errText := "run failed"
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		return ErrorMessage{
			Base:       newBase(TypeError),
			Error:      errText,
			ReactTrace: ev.Trace,
		}
	}

	step := ev.Step
	switch step.Type {
	case core.StepAction:
		return ToolCallMessage{
			Base:       newBase(TypeToolCall),
			StepIndex:  ev.StepIndex,
			ToolName:   step.ToolName,
			ToolParams: step.ToolParams,
			Content:    step.Content,
		}
	case core.StepObservation:
		return ToolResultMessage{
			Base:      newBase(TypeToolResult),
			StepIndex: ev.StepIndex,
			ToolName:  step.ToolName,
			Result:    step.ToolResult,
			Content:   step.Content,
		}
	default:
		return ThinkingMessage{
			Base:       newBase(TypeThinking),
			StepIndex:  ev.StepIndex,
			Content:    step.Content,
			ToolName:   step.ToolName,
			ToolParams: step.ToolParams,
		}
	}
}

func (d *Dispatcher) send(sessionID string, msg any) {
	if !d.registry.SendJSON(sessionID, msg) {
		d.logger.Debug("stream.send.dropped", "session_id", sessionID)
	}
}

// ParseInbound interprets a raw client payload: JSON with a message field, or
// plain text treated as the message itself.
func ParseInbound(data []byte) InboundMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var in InboundMessage
		if err := json.Unmarshal(trimmed, &in); err == nil {
			return in
		}
	}
	return InboundMessage{Message: string(data)}
}
