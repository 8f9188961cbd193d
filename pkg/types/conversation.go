package types

import "time"

// ConversationStatus tracks the lifecycle of a stored conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"   // ConversationActive marks a conversation still accepting turns.
	ConversationClosed   ConversationStatus = "closed"   // ConversationClosed marks a conversation ended by the caller.
	ConversationArchived ConversationStatus = "archived" // ConversationArchived marks a conversation retained for history only.
)

// Conversation is the persistent record of one caller's dialogue. It is
// created on the first turn and mutated on every append; the core never hard
// deletes it.
type Conversation struct {
	ID             string             `json:"id"`
	CallerID       string             `json:"caller_id"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	LastMessageAt  time.Time          `json:"last_message_at"`
	MessageCount   int                `json:"message_count"`
	ToolCallsCount int                `json:"tool_calls_count"`
	TotalTokens    int                `json:"total_tokens"`
	Status         ConversationStatus `json:"status"`
}

// ConversationContext is the ephemeral working set handed to a run: the
// conversation record plus the rolling-window suffix of its messages. It is
// rebuilt on every turn and never persisted.
type ConversationContext struct {
	Conversation *Conversation
	// Messages is the most recent window of history, oldest first.
	Messages []*Message
	// WindowTokens is the estimated token cost of Messages.
	WindowTokens int
}

// IterationContext describes exactly one pass of the agent loop. Immutable;
// the orchestrator builds a fresh one per iteration.
type IterationContext struct {
	ConversationID string
	// Iteration counts from 1 and never exceeds MaxIterations.
	Iteration     int
	MaxIterations int
	StreamingMode StreamingMode
}

// StreamingMode selects how strategy output reaches the caller.
type StreamingMode string

const (
	StreamProgressive StreamingMode = "progressive" // StreamProgressive forwards content deltas as they arrive.
	StreamFinalOnly   StreamingMode = "final-only"  // StreamFinalOnly suppresses deltas until the final answer.
)

// LastIteration returns true when no further iterations are allowed after
// this one.
func (ic *IterationContext) LastIteration() bool {
	return ic.Iteration >= ic.MaxIterations
}
