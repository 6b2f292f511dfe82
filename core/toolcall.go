package core

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a unique identifier used for runs, tool calls and events.
func NewID() string { return uuid.NewString() }

// ToolCallRequest is a single tool invocation proposed by the reasoning
// engine. It is immutable once issued; the loop copies it into the trace
// before execution so intent is recorded even if the call later fails.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NewToolCallRequest creates a request with a fresh call ID.
func NewToolCallRequest(name string, args map[string]any) ToolCallRequest {
	if args == nil {
		args = map[string]any{}
	}
	return ToolCallRequest{ID: NewID(), Name: name, Arguments: args}
}

// Fingerprint returns a stable identity for the (name, arguments) pair used
// by the loop's repeat-call rejection. json.Marshal sorts map keys, so two
// calls with equal arguments produce equal fingerprints regardless of
// insertion order.
func (r ToolCallRequest) Fingerprint() string {
	raw, err := json.Marshal(r.Arguments)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", r.Arguments))
	}
	return r.Name + ":" + string(raw)
}

// ToolCallResult is the normalized outcome of one tool call. Exactly one of
// Result/Error is populated; use the constructors to preserve the invariant.
type ToolCallResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewToolCallResult creates a successful result for the given call.
func NewToolCallResult(toolCallID, name string, result any) ToolCallResult {
	return ToolCallResult{ToolCallID: toolCallID, Name: name, Result: result}
}

// NewToolCallError creates a failed result carrying the error text.
func NewToolCallError(toolCallID, name string, err error) ToolCallResult {
	return ToolCallResult{ToolCallID: toolCallID, Name: name, Error: err.Error()}
}

// Failed reports whether the call produced an error instead of a result.
func (r ToolCallResult) Failed() bool { return r.Error != "" }

// Summary renders the result as text suitable for a tool-role message or an
// observation step.
func (r ToolCallResult) Summary() string {
	if r.Failed() {
		return fmt.Sprintf("Tool %s failed: %s", r.Name, r.Error)
	}
	switch v := r.Result.(type) {
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
