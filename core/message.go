package core

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles. A run's message list only ever contains these four.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. The message list of a run is an
// ordered, append-only sequence; ToolName and ToolCallID are populated only
// for tool-role messages that summarize a tool result for the next reasoning
// pass.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewAssistantMessage creates an assistant-authored text message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool-role message carrying the textual summary of
// a tool result, correlated to the originating call by ToolCallID.
func NewToolMessage(toolCallID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolName: toolName, ToolCallID: toolCallID}
}
