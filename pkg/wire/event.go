// Package wire defines the outward event protocol of a run. Every event a
// caller observes, from status lines to streamed answer chunks to the single
// terminal event, is a wire Event serialized as one JSON object per line.
package wire

import (
	"time"

	"github.com/loomlabs/loom/pkg/types"
)

// EventType defines the type of event emitted to the caller.
type EventType string

const (
	EventTypeStatusUpdate    EventType = "status_update"    // EventTypeStatusUpdate carries a human-readable progress note.
	EventTypeToolCallStart   EventType = "tool_call_start"  // EventTypeToolCallStart announces a tool invocation about to run.
	EventTypeToolCallResult  EventType = "tool_call_result" // EventTypeToolCallResult carries the outcome of one tool invocation.
	EventTypeResponseChunk   EventType = "response_chunk"   // EventTypeResponseChunk carries a piece of streamed answer text.
	EventTypeReasoningTrace  EventType = "reasoning_trace"  // EventTypeReasoningTrace carries a piece of the model's reasoning channel.
	EventTypeExecutionPlan   EventType = "execution_plan"   // EventTypeExecutionPlan carries the plan produced by a planning stage.
	EventTypeStageTransition EventType = "stage_transition" // EventTypeStageTransition marks movement between run stages.
	EventTypeCompleted       EventType = "completed"        // EventTypeCompleted terminates the run successfully.
	EventTypeError           EventType = "error"            // EventTypeError terminates the run with a failure.
)

// Event is the envelope written to the caller. Which payload fields are
// populated depends on Type; unused fields are omitted from the JSON.
type Event struct {
	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// ConversationID identifies the run's conversation.
	ConversationID string `json:"conversation_id"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`

	// Content holds text for status, chunk, reasoning, plan, completed and
	// error events.
	Content string `json:"content,omitempty"`

	// IsFinalAnswer marks response chunks that belong to the definitive
	// answer rather than intermediate output.
	IsFinalAnswer bool `json:"is_final_answer,omitempty"`

	// Stage names the stage a status or reasoning event belongs to.
	Stage string `json:"stage,omitempty"`

	// FromStage and ToStage describe a stage transition.
	FromStage string `json:"from_stage,omitempty"`
	ToStage   string `json:"to_stage,omitempty"`

	// Iteration counts loop passes from 1, on events tied to one pass.
	Iteration int `json:"iteration,omitempty"`

	// ToolCallID correlates tool start and result events.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is the tool being invoked.
	ToolName string `json:"tool_name,omitempty"`

	// ToolArgs holds the parsed arguments of a tool invocation.
	ToolArgs map[string]interface{} `json:"tool_args,omitempty"`

	// Result holds a tool invocation's output text.
	Result string `json:"result,omitempty"`

	// Success reports whether a tool invocation succeeded.
	Success bool `json:"success,omitempty"`

	// Usage carries token accounting on completed events.
	Usage *types.TokenUsage `json:"usage,omitempty"`
}

// NewStatusUpdateEvent creates a progress note event.
func NewStatusUpdateEvent(conversationID, status, stage string) *Event {
	return &Event{
		Type:           EventTypeStatusUpdate,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Content:        status,
		Stage:          stage,
	}
}

// NewToolCallStartEvent announces a tool invocation.
func NewToolCallStartEvent(conversationID string, call types.ToolCall, args map[string]interface{}) *Event {
	return &Event{
		Type:           EventTypeToolCallStart,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		ToolArgs:       args,
	}
}

// NewToolCallResultEvent carries the outcome of one tool invocation.
func NewToolCallResultEvent(conversationID string, result *types.ToolResult) *Event {
	e := &Event{
		Type:           EventTypeToolCallResult,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		ToolCallID:     result.ToolCallID,
		ToolName:       result.ToolName,
		Result:         result.Result,
		Success:        result.Success,
	}
	if !result.Success {
		e.Content = result.Error
	}
	return e
}

// NewResponseChunkEvent carries a piece of streamed answer text.
func NewResponseChunkEvent(conversationID, content string, isFinalAnswer bool) *Event {
	return &Event{
		Type:           EventTypeResponseChunk,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Content:        content,
		IsFinalAnswer:  isFinalAnswer,
	}
}

// NewReasoningTraceEvent carries a piece of the model's reasoning channel.
func NewReasoningTraceEvent(conversationID, content, stage string) *Event {
	return &Event{
		Type:           EventTypeReasoningTrace,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Content:        content,
		Stage:          stage,
	}
}

// NewExecutionPlanEvent carries the plan text from a planning stage.
func NewExecutionPlanEvent(conversationID, plan string) *Event {
	return &Event{
		Type:           EventTypeExecutionPlan,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Content:        plan,
	}
}

// NewStageTransitionEvent marks movement between run stages.
func NewStageTransitionEvent(conversationID, from, to string, iteration int) *Event {
	return &Event{
		Type:           EventTypeStageTransition,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		FromStage:      from,
		ToStage:        to,
		Iteration:      iteration,
	}
}

// NewCompletedEvent terminates the run with its final answer and the number
// of loop iterations it took to produce it.
func NewCompletedEvent(conversationID, finalAnswer string, iterationsUsed int, usage *types.TokenUsage) *Event {
	return &Event{
		Type:           EventTypeCompleted,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Content:        finalAnswer,
		Iteration:      iterationsUsed,
		Usage:          usage,
	}
}

// NewErrorEvent terminates the run with a failure description.
func NewErrorEvent(conversationID string, err error) *Event {
	e := &Event{
		Type:           EventTypeError,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	}
	if err != nil {
		e.Content = err.Error()
	}
	return e
}

// IsTerminal returns true for the two event types that end a run.
func (e *Event) IsTerminal() bool {
	return e.Type == EventTypeCompleted || e.Type == EventTypeError
}
