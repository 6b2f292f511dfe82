// Package stream defines the wire protocol spoken over a live client
// connection and the dispatcher that translates run events into it.
package stream

import (
	"time"

	"github.com/reagent-ai/reagent/core"
)

// Message types from server to client.
const (
	TypeConnected  = "connected"
	TypeAck        = "ack"
	TypeAgentInfo  = "agent_info"
	TypeThinking   = "thinking"
	TypeToolCall   = "tool_call"
	TypeToolResult = "tool_result"
	TypeStream     = "stream"
	TypeComplete   = "complete"
	TypeError      = "error"
	TypeInfo       = "info"
)

// MessageTypes enumerates every outbound type, advertised in the welcome
// message so clients can validate their handlers.
var MessageTypes = []string{
	TypeThinking, TypeToolCall, TypeToolResult, TypeStream,
	TypeComplete, TypeError, TypeAck, TypeAgentInfo, TypeInfo, TypeConnected,
}

// Base contains the fields common to every outbound message.
type Base struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"` // ISO-8601, UTC
}

func newBase(msgType string) Base {
	return Base{Type: msgType, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// ConnectedMessage welcomes an authenticated connection.
type ConnectedMessage struct {
	Base
	SessionID    string   `json:"session_id"`
	MessageTypes []string `json:"message_types"`
}

// AckMessage confirms receipt of a client message before processing starts.
type AckMessage struct {
	Base
	Message  string `json:"message"`
	AgentID  string `json:"agent_id,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// AgentInfoMessage announces the resolved target agent for a run.
type AgentInfoMessage struct {
	Base
	AgentName string `json:"agent_name"`
	AgentType string `json:"agent_type"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// ThinkingMessage carries one thought trace step.
type ThinkingMessage struct {
	Base
	StepIndex  int            `json:"step_index"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolParams map[string]any `json:"tool_params,omitempty"`
}

// ToolCallMessage carries one action trace step.
type ToolCallMessage struct {
	Base
	StepIndex  int            `json:"step_index"`
	ToolName   string         `json:"tool_name"`
	ToolParams map[string]any `json:"tool_params"`
	Content    string         `json:"content"`
}

// ToolResultMessage carries one observation trace step.
type ToolResultMessage struct {
	Base
	StepIndex int    `json:"step_index"`
	ToolName  string `json:"tool_name"`
	Result    any    `json:"result,omitempty"`
	Content   string `json:"content"`
}

// StreamMessage carries one token chunk of the final answer.
type StreamMessage struct {
	Base
	Content string `json:"content"`
}

// CompleteMessage is the run summary sent after the loop ends.
type CompleteMessage struct {
	Base
	FullResponse string           `json:"full_response"`
	ReactTrace   []core.ReActStep `json:"react_trace"`
	AgentID      string           `json:"agent_id,omitempty"`
	TotalSteps   int              `json:"total_steps"`
}

// ErrorMessage reports a run-fatal or connection-fatal error. The partial
// trace is included for diagnosis when available.
type ErrorMessage struct {
	Base
	Error      string           `json:"error"`
	ReactTrace []core.ReActStep `json:"react_trace,omitempty"`
}

// InfoMessage carries out-of-band informational text.
type InfoMessage struct {
	Base
	Message string `json:"message"`
}

// NewConnectedMessage builds the welcome message for a session.
func NewConnectedMessage(sessionID string) ConnectedMessage {
	return ConnectedMessage{
		Base:         newBase(TypeConnected),
		SessionID:    sessionID,
		MessageTypes: MessageTypes,
	}
}

// InboundMessage is the client-to-server payload. Payloads that are not valid
// JSON are treated as the raw message text with no overrides.
type InboundMessage struct {
	Message  string `json:"message"`
	AgentID  string `json:"agent_id,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}
