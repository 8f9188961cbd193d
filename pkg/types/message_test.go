package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty content still costs one token", "", 1},
		{"single char rounds up", "x", 1},
		{"exactly four chars", "abcd", 1},
		{"five chars rounds up", "abcde", 2},
		{"longer content", "What is the answer to 2+2?", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewUserMessage(tt.content)
			assert.Equal(t, tt.want, m.EstimateTokens())
		})
	}
}

func TestParseArguments(t *testing.T) {
	tc := ToolCall{
		ID:        "call_1",
		Type:      ToolCallTypeFunction,
		Name:      "search",
		Arguments: `{"query":"golang channels","limit":3}`,
	}

	args, err := tc.ParseArguments()
	require.NoError(t, err)
	assert.Equal(t, "golang channels", args["query"])
	assert.Equal(t, float64(3), args["limit"])
}

func TestParseArgumentsEmpty(t *testing.T) {
	tc := ToolCall{ID: "call_2", Name: "clock"}

	args, err := tc.ParseArguments()
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestParseArgumentsMalformed(t *testing.T) {
	tc := ToolCall{ID: "call_3", Name: "search", Arguments: `{"query":`}

	_, err := tc.ParseArguments()
	assert.Error(t, err)
}

func TestToolResultConstructors(t *testing.T) {
	call := &ToolCall{ID: "call_9", Name: "search"}

	ok := NewToolResult(call, "found it")
	assert.True(t, ok.Success)
	assert.Equal(t, "call_9", ok.ToolCallID)
	assert.Equal(t, "found it", ok.Result)
	assert.Empty(t, ok.Error)

	bad := NewToolError(call, "index unavailable")
	assert.False(t, bad.Success)
	assert.Equal(t, "index unavailable", bad.Result)
	assert.Equal(t, "index unavailable", bad.Error)
}

func TestMessageConstructors(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Type: ToolCallTypeFunction, Name: "search", Arguments: "{}"}}

	m := NewAssistantToolCallMessage("", calls)
	assert.Equal(t, RoleAssistant, m.Role)
	assert.True(t, m.HasToolCalls())

	tm := NewToolMessage("c1", "result body")
	assert.Equal(t, RoleTool, tm.Role)
	assert.Equal(t, "c1", tm.ToolCallID)
	assert.False(t, tm.HasToolCalls())
}
