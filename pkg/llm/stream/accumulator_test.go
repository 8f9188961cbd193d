package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/pkg/llm"
)

func TestAccumulatorSingleCall(t *testing.T) {
	acc := NewToolCallAccumulator(nil)

	acc.Apply([]llm.ToolCallDelta{{Index: 0, ID: "call_1", Type: "function", Name: "search"}})
	acc.Apply([]llm.ToolCallDelta{{Index: 0, Arguments: `{"que`}})
	acc.Apply([]llm.ToolCallDelta{{Index: 0, Arguments: `ry":"`}})
	acc.Apply([]llm.ToolCallDelta{{Index: 0, Arguments: `x"}`}})

	calls := acc.Finish()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, `{"query":"x"}`, calls[0].Arguments)
}

func TestAccumulatorConcurrentCallsOrderedByIndex(t *testing.T) {
	acc := NewToolCallAccumulator(nil)

	// Deltas for two calls interleave; index identifies ownership.
	acc.Apply([]llm.ToolCallDelta{
		{Index: 1, ID: "call_b", Name: "clock"},
		{Index: 0, ID: "call_a", Name: "search"},
	})
	acc.Apply([]llm.ToolCallDelta{
		{Index: 0, Arguments: `{"query":"go"}`},
		{Index: 1, Arguments: `{}`},
	})

	calls := acc.Finish()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, "call_b", calls[1].ID)
	assert.Equal(t, `{"query":"go"}`, calls[0].Arguments)
	assert.Equal(t, `{}`, calls[1].Arguments)
}

// Same deltas in the same per-index order must assemble identically no
// matter how the argument text was fragmented.
func TestAccumulatorFragmentationInvariance(t *testing.T) {
	args := `{"query":"golang channels","filters":{"lang":"en","max":10}}`

	assemble := func(size int) []llm.ToolCallDelta {
		deltas := []llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: "search"}}
		for i := 0; i < len(args); i += size {
			end := i + size
			if end > len(args) {
				end = len(args)
			}
			deltas = append(deltas, llm.ToolCallDelta{Index: 0, Arguments: args[i:end]})
		}
		return deltas
	}

	for _, size := range []int{1, 2, 4, 9, len(args)} {
		acc := NewToolCallAccumulator(nil)
		acc.Apply(assemble(size))

		calls := acc.Finish()
		require.Len(t, calls, 1, "fragment size %d", size)
		assert.Equal(t, args, calls[0].Arguments, "fragment size %d", size)
	}
}

func TestAccumulatorDropsIncompleteEntries(t *testing.T) {
	acc := NewToolCallAccumulator(nil)

	acc.Apply([]llm.ToolCallDelta{
		{Index: 0, ID: "call_1", Name: "search", Arguments: `{}`},
		{Index: 1, ID: "call_2", Arguments: `{"x":1}`}, // never gets a name
		{Index: 2, Name: "clock"},                      // never gets an id
	})

	calls := acc.Finish()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
}

func TestAccumulatorDefaultsType(t *testing.T) {
	acc := NewToolCallAccumulator(nil)
	acc.Apply([]llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: "clock"}})

	calls := acc.Finish()
	require.Len(t, calls, 1)
	assert.Equal(t, "function", calls[0].Type)
}

func TestAccumulatorFinishResets(t *testing.T) {
	acc := NewToolCallAccumulator(nil)
	acc.Apply([]llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: "search"}})

	assert.True(t, acc.HasCalls())
	require.Len(t, acc.Finish(), 1)

	assert.False(t, acc.HasCalls())
	assert.Empty(t, acc.Finish())
}
