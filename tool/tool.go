// Package tool implements the tool-calling subsystem: stored tool
// definitions, the two implementation variants (in-process function and
// templated HTTP call), per-run catalog snapshots, and the invoker that
// validates arguments, dispatches calls and contains failures.
package tool

import (
	"context"
	"fmt"
)

// Kind discriminates how a stored tool definition is executed.
type Kind string

const (
	// KindFunction marks a tool backed by an in-process Go function.
	KindFunction Kind = "function"
	// KindHTTP marks a tool backed by a templated HTTP call.
	KindHTTP Kind = "http"
)

// HTTPSpec holds the stored metadata an HTTP-backed tool call is built from.
type HTTPSpec struct {
	Method  string            `json:"method"`            // GET, POST, ...
	URL     string            `json:"url"`               // may contain {param} placeholders
	Headers map[string]string `json:"headers,omitempty"` // static headers
}

// Definition is a stored tool description. The store owns these records;
// runs read a snapshot at start and never cache beyond the run, so
// enable/disable and assignment changes take effect on the next run.
type Definition struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ParameterSchema map[string]any `json:"parameter_schema"`
	Enabled         bool           `json:"enabled"`
	AssignedAgents  []string       `json:"assigned_agents,omitempty"` // empty means every agent
	Kind            Kind           `json:"kind"`
	HTTP            *HTTPSpec      `json:"http,omitempty"` // required when Kind == KindHTTP
}

// AssignedTo reports whether the definition is available to the named agent.
// A definition with no assignment list is available to all agents.
func (d Definition) AssignedTo(agent string) bool {
	if len(d.AssignedAgents) == 0 {
		return true
	}
	for _, a := range d.AssignedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// Tool is the capability interface the loop invokes. Implementations must be
// safe for concurrent use; batch execution calls them from multiple
// goroutines.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns a JSON-Schema-like map describing the arguments.
	Parameters() map[string]any

	// Call executes the tool with validated arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Error codes attached to *Error, mirroring the invoker's failure taxonomy.
const (
	CodeNotFound         = "TOOL_NOT_FOUND"
	CodeDisabled         = "TOOL_DISABLED"
	CodeMissingParameter = "MISSING_PARAMETER"
	CodeValidation       = "VALIDATION_ERROR"
	CodeExecution        = "EXECUTION_ERROR"
)

// Error is the uniform error type surfaced by the invoker and by tool
// implementations. The Code categorizes the failure; Message carries the
// original cause's text so upstream transport errors never escape raw.
type Error struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewError creates an Error with the given details.
func NewError(tool, message, code string) *Error {
	return &Error{Tool: tool, Message: message, Code: code}
}

// ErrorCode returns the tool error code carried by err, or "" when err is
// not a *Error.
func ErrorCode(err error) string {
	if te, ok := err.(*Error); ok {
		return te.Code
	}
	return ""
}

// IsNotFound reports whether err is a tool-not-found failure.
func IsNotFound(err error) bool { return ErrorCode(err) == CodeNotFound }

// IsDisabled reports whether err is a disabled-tool failure.
func IsDisabled(err error) bool { return ErrorCode(err) == CodeDisabled }

// IsMissingParameter reports whether err is a missing-required-parameter
// failure.
func IsMissingParameter(err error) bool { return ErrorCode(err) == CodeMissingParameter }
