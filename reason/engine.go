package reason

import (
	"context"
	"fmt"
	"strings"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/logging"
	"github.com/reagent-ai/reagent/model"
	"github.com/reagent-ai/reagent/tool"
)

// StepInput carries everything one reasoning step may consult.
type StepInput struct {
	// Messages is the conversation so far, including tool observations.
	Messages []core.Message
	// Trace is the run's step history, used to recap observations when the
	// iteration budget forces a final answer.
	Trace []core.ReActStep
	// Tools is the immutable tool catalog for this run.
	Tools []tool.Definition
	// ForceFinal demands a final answer; any tool request is discarded.
	ForceFinal bool
	// OnToken, when set, receives final-answer text incrementally as the
	// model streams it. Only text after the final-answer marker is forwarded.
	OnToken func(text string)
}

// Engine produces one reasoning step per call.
type Engine interface {
	Step(ctx context.Context, in StepInput) (Outcome, error)
}

// Options configure a StepEngine.
type Options struct {
	// Persona replaces the default system persona line.
	Persona string
	Logger  logging.Logger
}

// StepEngine implements Engine on top of a model.Model.
type StepEngine struct {
	model  model.Model
	logger logging.Logger
	opts   Options
}

// NewStepEngine creates a StepEngine for the given model.
func NewStepEngine(m model.Model, optFns ...func(o *Options)) *StepEngine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &StepEngine{model: m, logger: opts.Logger, opts: opts}
}

// Step implements Engine. Model transport failures are returned as errors;
// malformed model output is not an error and parses to a plain Thought.
func (e *StepEngine) Step(ctx context.Context, in StepInput) (Outcome, error) {
	system, err := buildSystemPrompt(e.opts.Persona, in.Tools, in.ForceFinal)
	if err != nil {
		return Outcome{}, err
	}

	messages := in.Messages
	if in.ForceFinal {
		if recap := renderObservations(in.Trace); recap != "" {
			messages = append(append([]core.Message{}, messages...),
				core.NewUserMessage("Observations so far:\n"+recap))
		}
	}

	e.logger.Debug("reason.step.start",
		"messages", len(messages), "tools", len(in.Tools), "force_final", in.ForceFinal)

	raw, err := e.generate(ctx, model.Request{
		System:   system,
		Messages: messages,
		Stream:   in.OnToken != nil,
	}, in.OnToken)
	if err != nil {
		return Outcome{}, fmt.Errorf("reasoning model call: %w", err)
	}

	outcome := parseOutcome(raw)
	if in.ForceFinal {
		outcome = coerceFinal(outcome, raw)
	}

	e.logger.Debug("reason.step.end", "final", outcome.IsFinal())
	return outcome, nil
}

// generate runs one model call, forwarding final-answer tokens to onToken as
// they arrive, and returns the full accumulated text.
func (e *StepEngine) generate(ctx context.Context, req model.Request, onToken func(string)) (string, error) {
	respCh, errCh := e.model.Generate(ctx, req)

	var full strings.Builder
	forwarded := 0 // bytes of full already sent to onToken
	var finalText string
	for resp := range respCh {
		if !resp.Partial {
			finalText = resp.Text
			continue
		}
		full.WriteString(resp.Text)
		if onToken == nil {
			continue
		}
		// Forward only the part of the accumulated text that follows the
		// final-answer marker, so reasoning scaffolding never reaches the
		// client as answer tokens.
		idx := indexMarker(full.String(), finalAnswerMarker)
		if idx < 0 {
			continue
		}
		answerStart := idx + len(finalAnswerMarker)
		if forwarded < answerStart {
			forwarded = answerStart
		}
		pending := full.String()[forwarded:]
		if forwarded == answerStart {
			pending = strings.TrimLeft(pending, " \t\n")
		}
		if pending != "" {
			forwarded = full.Len()
			onToken(pending)
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	if finalText != "" {
		return finalText, nil
	}
	return full.String(), nil
}

// coerceFinal forces an outcome into FinalAnswer, dropping any tool request
// the model attempted despite the stop instruction.
func coerceFinal(o Outcome, raw string) Outcome {
	if o.IsFinal() {
		return o
	}
	text := ""
	if o.Thought != nil {
		text = strings.TrimSpace(o.Thought.Text)
	}
	if text == "" {
		text = strings.TrimSpace(raw)
	}
	return Outcome{Final: &FinalAnswer{Text: text}}
}
