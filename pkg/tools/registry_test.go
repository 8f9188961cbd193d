package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/pkg/types"
)

// mockTool is a configurable test double.
type mockTool struct {
	name    string
	schema  string
	execute func(ctx context.Context, args map[string]interface{}) (string, error)
}

func (m *mockTool) Name() string { return m.name }

func (m *mockTool) Description() string { return "mock tool" }

func (m *mockTool) ParameterSchema() json.RawMessage {
	if m.schema == "" {
		return nil
	}
	return json.RawMessage(m.schema)
}

func (m *mockTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if m.execute != nil {
		return m.execute(ctx, args)
	}
	return "ok", nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockTool{name: "search"}))

	tool, ok := r.Get("search")
	assert.True(t, ok)
	assert.Equal(t, "search", tool.Name())
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockTool{name: "search"}))
	assert.Error(t, r.Register(&mockTool{name: "search"}))
}

func TestRegisterRejectsFinalizeSentinel(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&mockTool{name: FinalizeToolName})
	assert.Error(t, err)
}

func TestRegisterRejectsInvalidNames(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&mockTool{name: ""}))
	assert.Error(t, r.Register(&mockTool{name: strings.Repeat("x", MaxToolNameLength+1)}))
}

func TestRegisterRejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&mockTool{name: "broken", schema: `{"type": 42}`})
	assert.Error(t, err)
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockTool{
		name: "echo",
		execute: func(_ context.Context, args map[string]interface{}) (string, error) {
			return args["text"].(string), nil
		},
	}))

	result := r.Execute(context.Background(), types.ToolCall{
		ID:        "call_1",
		Name:      "echo",
		Arguments: `{"text":"hello"}`,
	})

	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Result)
	assert.Equal(t, "call_1", result.ToolCallID)
}

func TestExecuteUnknownToolReturnsFailedResult(t *testing.T) {
	r := NewRegistry()

	result := r.Execute(context.Background(), types.ToolCall{ID: "call_1", Name: "missing"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not available")
	assert.Equal(t, "call_1", result.ToolCallID)
}

func TestExecuteMalformedArgumentsReturnsFailedResult(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockTool{name: "echo"}))

	result := r.Execute(context.Background(), types.ToolCall{
		ID:        "call_1",
		Name:      "echo",
		Arguments: `{"text":`,
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not valid JSON")
}

func TestExecuteSchemaValidation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockTool{
		name:   "typed",
		schema: `{"type":"object","properties":{"count":{"type":"integer"}},"required":["count"]}`,
	}))

	bad := r.Execute(context.Background(), types.ToolCall{
		ID:        "call_1",
		Name:      "typed",
		Arguments: `{"count":"three"}`,
	})
	assert.False(t, bad.Success)
	assert.Contains(t, bad.Error, "schema")

	good := r.Execute(context.Background(), types.ToolCall{
		ID:        "call_2",
		Name:      "typed",
		Arguments: `{"count":3}`,
	})
	assert.True(t, good.Success)
}

func TestExecuteToolFailureIsNotFatal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockTool{
		name: "flaky",
		execute: func(context.Context, map[string]interface{}) (string, error) {
			return "", errors.New("index unavailable")
		},
	}))

	result := r.Execute(context.Background(), types.ToolCall{ID: "call_1", Name: "flaky", Arguments: "{}"})
	assert.False(t, result.Success)
	assert.Equal(t, "index unavailable", result.Error)
	// The error text is fed back to the model via Result too.
	assert.Equal(t, "index unavailable", result.Result)
}

func TestDefinitionsIncludeFinalize(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockTool{name: "search"}))

	withSentinel := r.Definitions(true)
	assert.Len(t, withSentinel, 2)

	names := []string{withSentinel[0].Name, withSentinel[1].Name}
	assert.Contains(t, names, FinalizeToolName)

	without := r.Definitions(false)
	assert.Len(t, without, 1)
}
