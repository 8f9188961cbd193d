// Package strategy defines how one iteration of the agent loop talks to a
// model. A Strategy owns exactly one iteration: it calls its provider(s),
// translates the raw stream into StrategyEvents, and closes the iteration
// with a single IterationComplete event. The orchestrator owns everything
// across iterations.
package strategy

import (
	"context"
	"strings"

	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/llm/stream"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/types"
)

// Stage names reported on status and reasoning events.
const (
	StagePlanning  = "planning"  // StagePlanning marks the reasoning/plan call of a hybrid run.
	StageExecuting = "executing" // StageExecuting marks a tool-capable model call.
	StageSynthesis = "synthesis" // StageSynthesis marks the final answer call.
)

// EmitFunc receives strategy events in order. Implementations must not
// block; the orchestrator fans events out to the wire.
type EmitFunc func(*types.StrategyEvent)

// Strategy drives one iteration of the loop. ExecuteIteration emits exactly
// one IterationComplete on success; on error it returns without one and the
// orchestrator terminates the run.
type Strategy interface {
	Name() string
	ExecuteIteration(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, itctx *types.IterationContext, emit EmitFunc) error
}

// callOutcome is the collected result of one model call.
type callOutcome struct {
	content   string
	reasoning string
	calls     []types.ToolCall
	usage     *types.TokenUsage
	finish    string
}

// shouldContinue reports whether the loop has more work after this call.
func (o *callOutcome) shouldContinue() bool {
	return len(o.calls) > 0
}

// runModelCall performs one provider round trip and folds the stream into a
// callOutcome. Content deltas are forwarded as ContentChunk events only when
// streamContent is set; reasoning deltas are always forwarded. Tool-call
// deltas feed the accumulator and surface a ToolCallDetected event the first
// time an index reports its name.
func runModelCall(ctx context.Context, provider llm.Provider, messages []*types.Message, tools []llm.ToolDefinition, cfg llm.RequestConfig, stage string, streamContent bool, emit EmitFunc, logger *logging.Logger) (*callOutcome, error) {
	if !provider.Capabilities().SupportsStreaming {
		resp, err := provider.Complete(ctx, messages, tools, cfg)
		if err != nil {
			return nil, err
		}
		return &callOutcome{
			content:   resp.Content,
			reasoning: resp.Reasoning,
			calls:     resp.ToolCalls,
			usage:     resp.Usage,
			finish:    resp.FinishReason,
		}, nil
	}

	ch, err := provider.StreamCompletion(ctx, messages, tools, cfg)
	if err != nil {
		return nil, err
	}

	acc := stream.NewToolCallAccumulator(logger)
	detected := make(map[int]bool)
	var content, reasoning strings.Builder
	outcome := &callOutcome{}

	for chunk := range ch {
		if chunk.IsError() {
			return nil, chunk.Err
		}
		if chunk.ContentDelta != "" {
			content.WriteString(chunk.ContentDelta)
			if streamContent {
				emit(types.NewContentChunkEvent(chunk.ContentDelta))
			}
		}
		if chunk.ReasoningDelta != "" {
			reasoning.WriteString(chunk.ReasoningDelta)
			emit(types.NewReasoningChunkEvent(chunk.ReasoningDelta, stage))
		}
		for _, d := range chunk.ToolCallDeltas {
			if d.Name != "" && !detected[d.Index] {
				detected[d.Index] = true
				emit(types.NewToolCallDetectedEvent(types.ToolCall{
					ID:   d.ID,
					Type: d.Type,
					Name: d.Name,
				}))
			}
		}
		acc.Apply(chunk.ToolCallDeltas)
		if chunk.Usage != nil {
			outcome.usage = chunk.Usage
		}
		if chunk.FinishReason != "" {
			outcome.finish = chunk.FinishReason
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	outcome.content = content.String()
	outcome.reasoning = reasoning.String()
	outcome.calls = acc.Finish()
	return outcome, nil
}

// closeIteration emits the terminal pair of events for a successful call:
// either the assembled tool calls or the final answer, then exactly one
// IterationComplete. Answer text produced alongside tool calls rides on the
// tool-calls event so it survives into the conversation history.
func closeIteration(out *callOutcome, emit EmitFunc) {
	if out.shouldContinue() {
		emit(types.NewToolCallsCompleteEvent(out.calls, out.content))
	} else {
		emit(types.NewFinalResponseEvent(out.content))
	}
	emit(types.NewIterationCompleteEvent(out.shouldContinue(), out.usage))
}
