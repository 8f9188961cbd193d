package types

// Role identifies which party a conversation message belongs to.
type Role string

const (
	RoleSystem    Role = "system"    // RoleSystem marks instructions injected by the application.
	RoleUser      Role = "user"      // RoleUser marks input sent by the caller.
	RoleAssistant Role = "assistant" // RoleAssistant marks model output, possibly carrying tool calls.
	RoleTool      Role = "tool"      // RoleTool marks a tool execution result fed back to the model.
)

// Message is one immutable entry in a conversation transcript. Once a
// message has been appended to a conversation it is never mutated; follow-up
// information (tool results, corrections) arrives as new messages.
type Message struct {
	// Role identifies the author of the message.
	Role Role `json:"role"`

	// Content is the text body. Assistant messages that only carry tool
	// calls have empty content.
	Content string `json:"content"`

	// ToolCallID links a tool-role message back to the ToolCall it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls holds the calls requested by an assistant message, in the
	// order the model produced them.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Metadata holds optional additional information about the message.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role message with plain content.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// NewAssistantToolCallMessage creates an assistant-role message carrying the
// tool calls the model requested this iteration.
func NewAssistantToolCallMessage(content string, calls []ToolCall) *Message {
	return &Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolMessage creates a tool-role message answering the given call.
func NewToolMessage(toolCallID, content string) *Message {
	return &Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// HasToolCalls returns true if the message requests at least one tool call.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// EstimateTokens returns a cheap size estimate for the message body, used for
// conversation counters. Roughly four characters per token, never zero.
func (m *Message) EstimateTokens() int {
	n := (len(m.Content) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
