// Package llm defines the model-provider contract the orchestration engine
// consumes. A Provider hides one backend's transport, auth, and wire shapes
// behind canonical messages, request config, and normalized stream chunks;
// implementations live in the per-backend subpackages.
package llm

import (
	"context"
	"encoding/json"

	"github.com/loomlabs/loom/pkg/types"
)

// Provider is implemented once per LLM backend. The active provider is
// selected at startup by configuration, never by runtime type inspection.
type Provider interface {
	// Complete performs one blocking round trip and returns the extracted
	// response.
	Complete(ctx context.Context, messages []*types.Message, tools []ToolDefinition, cfg RequestConfig) (*Response, error)

	// StreamCompletion starts a streaming round trip. The returned channel
	// yields one chunk per surviving logical line and is closed when the
	// stream ends or ctx is canceled. Stream-time failures arrive as a
	// final chunk with Err set.
	StreamCompletion(ctx context.Context, messages []*types.Message, tools []ToolDefinition, cfg RequestConfig) (<-chan *StreamChunk, error)

	// Capabilities describes what this backend supports.
	Capabilities() Capabilities

	// Name returns the backend identifier used in logs and errors.
	Name() string
}

// Capabilities is the static feature set of a backend.
type Capabilities struct {
	SupportsStreaming       bool
	SupportsReasoningStream bool
	SupportsToolCalling     bool
}

// RequestConfig carries per-call knobs. The zero value asks for the
// provider's defaults.
type RequestConfig struct {
	// Model overrides the provider's default model for this call.
	Model string

	// Temperature, when non-nil, overrides the sampling temperature.
	Temperature *float64

	// MaxTokens caps the completion length; zero means provider default.
	MaxTokens int

	// Reasoning enables the backend's separate reasoning channel when it
	// has one.
	Reasoning bool

	// ReasoningBudget caps reasoning tokens when the channel is enabled.
	ReasoningBudget int

	// Extras holds backend-specific settings the core does not interpret.
	Extras map[string]interface{}
}

// ToolDefinition is the schema-level description of a tool advertised to the
// model. Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Response is the normalized result of a non-streaming call.
type Response struct {
	// Content is the answer text, empty when the model only requested
	// tools.
	Content string

	// Reasoning is the separate reasoning-channel text, when exposed.
	Reasoning string

	// ToolCalls holds the calls the model requested, in order.
	ToolCalls []types.ToolCall

	// FinishReason is the backend's stop reason, normalized to lower case.
	FinishReason string

	// Usage carries token accounting when the backend reported it.
	Usage *types.TokenUsage
}

// StreamChunk is one normalized unit of a streaming response.
type StreamChunk struct {
	// ContentDelta is the next piece of answer text, possibly empty.
	ContentDelta string

	// ReasoningDelta is the next piece of reasoning-channel text.
	ReasoningDelta string

	// ToolCallDeltas carries partial tool-call fragments. They are only
	// meaningful to the accumulator and are never individually parseable.
	ToolCallDeltas []ToolCallDelta

	// FinishReason is non-empty on the chunk that ends the turn.
	FinishReason string

	// Usage is populated at most once, near the end of the stream.
	Usage *types.TokenUsage

	// Err reports a stream-time failure; it is always the last chunk.
	Err error
}

// IsError returns true if the chunk carries a stream-time failure.
func (c *StreamChunk) IsError() bool {
	return c != nil && c.Err != nil
}

// ToolCallDelta is a partial tool call tagged with the index of the call it
// belongs to. ID, Type and Name appear at most once per index; Arguments
// fragments append in order and only parse after full concatenation.
type ToolCallDelta struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}
