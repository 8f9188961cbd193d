package types

// StrategyEventType defines the kind of event a strategy emits while driving
// one iteration.
type StrategyEventType string

const (
	EventReasoningChunk    StrategyEventType = "reasoning_chunk"     // EventReasoningChunk carries a delta from the model's reasoning channel.
	EventContentChunk      StrategyEventType = "content_chunk"       // EventContentChunk carries a delta of answer content.
	EventToolCallDetected  StrategyEventType = "tool_call_detected"  // EventToolCallDetected signals a tool call has started assembling.
	EventToolCallsComplete StrategyEventType = "tool_calls_complete" // EventToolCallsComplete carries the fully assembled calls for this iteration.
	EventFinalResponse     StrategyEventType = "final_response"      // EventFinalResponse carries the complete final answer text.
	EventIterationComplete StrategyEventType = "iteration_complete"  // EventIterationComplete closes the iteration; exactly one per invocation.
	EventStatusUpdate      StrategyEventType = "status_update"       // EventStatusUpdate reports a stage change or progress note.
	EventExecutionPlan     StrategyEventType = "execution_plan"      // EventExecutionPlan carries the plan text produced by a planning stage.
)

// StrategyEvent is the internal tagged union flowing from a strategy to the
// orchestrator. Which fields are populated depends on Type.
type StrategyEvent struct {
	// Type indicates the kind of event.
	Type StrategyEventType

	// Content holds text for chunk, final-response, and status events.
	Content string

	// ToolCalls holds assembled calls for tool_calls_complete events.
	ToolCalls []ToolCall

	// Stage names the strategy stage that produced the event, when the
	// strategy distinguishes stages (planning, synthesis).
	Stage string

	// ShouldContinue reports, on iteration_complete, whether the loop has
	// more work: true iff at least one tool call was produced.
	ShouldContinue bool

	// Usage carries token accounting when the backend reported it.
	Usage *TokenUsage
}

// TokenUsage contains token counts reported by a model backend.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewReasoningChunkEvent creates a reasoning delta event.
func NewReasoningChunkEvent(content, stage string) *StrategyEvent {
	return &StrategyEvent{Type: EventReasoningChunk, Content: content, Stage: stage}
}

// NewContentChunkEvent creates a content delta event.
func NewContentChunkEvent(content string) *StrategyEvent {
	return &StrategyEvent{Type: EventContentChunk, Content: content}
}

// NewToolCallDetectedEvent signals that the named call began assembling.
func NewToolCallDetectedEvent(call ToolCall) *StrategyEvent {
	return &StrategyEvent{Type: EventToolCallDetected, ToolCalls: []ToolCall{call}}
}

// NewToolCallsCompleteEvent carries the assembled calls for the iteration,
// along with any answer text the model produced alongside them.
func NewToolCallsCompleteEvent(calls []ToolCall, content string) *StrategyEvent {
	return &StrategyEvent{Type: EventToolCallsComplete, ToolCalls: calls, Content: content}
}

// NewFinalResponseEvent carries the complete final answer.
func NewFinalResponseEvent(content string) *StrategyEvent {
	return &StrategyEvent{Type: EventFinalResponse, Content: content}
}

// NewIterationCompleteEvent closes the iteration.
func NewIterationCompleteEvent(shouldContinue bool, usage *TokenUsage) *StrategyEvent {
	return &StrategyEvent{Type: EventIterationComplete, ShouldContinue: shouldContinue, Usage: usage}
}

// NewExecutionPlanEvent carries the full plan text from a planning stage.
func NewExecutionPlanEvent(plan, stage string) *StrategyEvent {
	return &StrategyEvent{Type: EventExecutionPlan, Content: plan, Stage: stage}
}

// NewStatusUpdateEvent reports strategy progress.
func NewStatusUpdateEvent(status, stage string) *StrategyEvent {
	return &StrategyEvent{Type: EventStatusUpdate, Content: status, Stage: stage}
}

// IsTerminalForIteration returns true for events that end the iteration.
func (e *StrategyEvent) IsTerminalForIteration() bool {
	return e.Type == EventIterationComplete
}

// IsContentEvent returns true if this event carries answer text.
func (e *StrategyEvent) IsContentEvent() bool {
	return e.Type == EventContentChunk || e.Type == EventFinalResponse
}
