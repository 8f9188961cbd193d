package stream

import (
	"sort"
	"strings"

	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/types"
)

// ToolCallAccumulator reassembles tool calls streamed as indexed partial
// deltas. Each delta belongs to the call identified by its index; id, type
// and name arrive at most once per index while argument fragments append
// across many chunks. Argument fragments are not individually valid JSON and
// must only be parsed after Finish.
type ToolCallAccumulator struct {
	builders map[int]*callBuilder
	logger   *logging.Logger
}

type callBuilder struct {
	id   string
	typ  string
	name string
	args strings.Builder
}

// NewToolCallAccumulator creates an empty accumulator. A nil logger falls
// back to the package default.
func NewToolCallAccumulator(logger *logging.Logger) *ToolCallAccumulator {
	return &ToolCallAccumulator{
		builders: make(map[int]*callBuilder),
		logger:   logger,
	}
}

// Apply folds one chunk's deltas into the per-index builders.
func (acc *ToolCallAccumulator) Apply(deltas []llm.ToolCallDelta) {
	for _, d := range deltas {
		b := acc.builders[d.Index]
		if b == nil {
			b = &callBuilder{}
			acc.builders[d.Index] = b
		}
		if d.ID != "" {
			b.id = d.ID
		}
		if d.Type != "" {
			b.typ = d.Type
		}
		if d.Name != "" {
			b.name = d.Name
		}
		if d.Arguments != "" {
			b.args.WriteString(d.Arguments)
		}
	}
}

// HasCalls reports whether any deltas have been applied so far.
func (acc *ToolCallAccumulator) HasCalls() bool {
	return len(acc.builders) > 0
}

// Finish assembles one ToolCall per index, ordered by index. Only entries
// that received both an id and a name are emitted; incomplete entries are a
// known backend data-quality defect, logged as warnings rather than silently
// dropped. Finish resets the accumulator.
func (acc *ToolCallAccumulator) Finish() []types.ToolCall {
	indexes := make([]int, 0, len(acc.builders))
	for i := range acc.builders {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var calls []types.ToolCall
	for _, i := range indexes {
		b := acc.builders[i]
		if b.id == "" || b.name == "" {
			acc.log().Warnf("dropping incomplete tool call at index %d: id=%q name=%q args=%d bytes",
				i, b.id, b.name, b.args.Len())
			continue
		}
		typ := b.typ
		if typ == "" {
			typ = types.ToolCallTypeFunction
		}
		calls = append(calls, types.ToolCall{
			ID:        b.id,
			Type:      typ,
			Name:      b.name,
			Arguments: b.args.String(),
		})
	}

	acc.builders = make(map[int]*callBuilder)
	return calls
}

func (acc *ToolCallAccumulator) log() *logging.Logger {
	if acc.logger != nil {
		return acc.logger
	}
	return logging.Default()
}
