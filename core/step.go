package core

import "time"

// StepType discriminates the three kinds of trace entries a run produces.
type StepType string

const (
	// StepThought records reasoning text, optionally proposing a tool call.
	StepThought StepType = "thought"
	// StepAction records the intent to execute a tool call.
	StepAction StepType = "action"
	// StepObservation records the normalized outcome of a tool call.
	StepObservation StepType = "observation"
)

// ReActStep is one entry in a run's trace. The trace is append-only and
// ordered; steps are never mutated after being appended. It feeds both the
// streamed client feed and the audit record persisted at run end.
type ReActStep struct {
	Type       StepType       `json:"step_type"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolParams map[string]any `json:"tool_params,omitempty"`
	ToolResult any            `json:"tool_result,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewThoughtStep records reasoning text. toolName/toolParams are set when the
// thought proposes a tool call and empty when it concludes the run.
func NewThoughtStep(content, toolName string, toolParams map[string]any) ReActStep {
	return ReActStep{
		Type:       StepThought,
		Content:    content,
		ToolName:   toolName,
		ToolParams: toolParams,
		Timestamp:  time.Now().UTC(),
	}
}

// NewActionStep records a tool invocation before its result is known.
func NewActionStep(call ToolCallRequest) ReActStep {
	return ReActStep{
		Type:       StepAction,
		Content:    "Executing tool: " + call.Name,
		ToolName:   call.Name,
		ToolParams: call.Arguments,
		Timestamp:  time.Now().UTC(),
	}
}

// NewObservationStep records the outcome of a tool call, success or error.
func NewObservationStep(result ToolCallResult) ReActStep {
	step := ReActStep{
		Type:      StepObservation,
		Content:   result.Summary(),
		ToolName:  result.Name,
		Timestamp: time.Now().UTC(),
	}
	if !result.Failed() {
		step.ToolResult = result.Result
	}
	return step
}
