package types

import "encoding/json"

// ToolCallTypeFunction is the only call type current backends emit.
const ToolCallTypeFunction = "function"

// ToolCall is a structured request from the model to invoke a named tool.
// It arrives either whole (non-streaming responses) or assembled
// incrementally from indexed deltas by the stream accumulator.
type ToolCall struct {
	// ID uniquely identifies the call within its iteration; results
	// correlate back to it.
	ID string `json:"id"`

	// Type is the call kind, always "function" today.
	Type string `json:"type"`

	// Name is the registered tool name to invoke.
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument object, valid only once fully
	// assembled.
	Arguments string `json:"arguments"`
}

// ParseArguments decodes the assembled argument text into a generic map.
func (tc *ToolCall) ParseArguments() (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if tc.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ToolResult is the outcome of executing one ToolCall. Every result
// correlates 1:1 to a prior call by ToolCallID; results without a matching
// call are dropped by the orchestrator.
type ToolResult struct {
	// ToolCallID is the id of the call this result answers.
	ToolCallID string `json:"tool_call_id"`

	// ToolName is the name of the tool that ran.
	ToolName string `json:"tool_name"`

	// Result is the textual output handed back to the model.
	Result string `json:"result"`

	// Success is false when the tool failed; the error text is still fed
	// back so the model can react.
	Success bool `json:"success"`

	// Error holds the failure description when Success is false.
	Error string `json:"error,omitempty"`

	// Metadata holds optional additional information about the execution.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewToolResult creates a successful result for the given call.
func NewToolResult(call *ToolCall, result string) *ToolResult {
	return &ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Result:     result,
		Success:    true,
		Metadata:   make(map[string]interface{}),
	}
}

// NewToolError creates a failed result for the given call. The error text is
// placed in both Result and Error so it reaches the model verbatim.
func NewToolError(call *ToolCall, errText string) *ToolResult {
	return &ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Result:     errText,
		Success:    false,
		Error:      errText,
		Metadata:   make(map[string]interface{}),
	}
}
