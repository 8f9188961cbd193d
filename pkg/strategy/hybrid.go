package strategy

import (
	"context"

	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/types"
)

// Hybrid splits the loop between two providers: a reasoning-capable planner
// for the first iteration and a tool-capable executor for the rest. The
// planner sees the same tool definitions; when it requests tools, its answer
// text is surfaced as the execution plan and the calls go back to the
// orchestrator. When it does not, the planning output is already the final
// answer.
type Hybrid struct {
	planner    llm.Provider
	executor   llm.Provider
	plannerCfg llm.RequestConfig
	execCfg    llm.RequestConfig
	logger     *logging.Logger
}

// HybridOption configures a Hybrid strategy.
type HybridOption func(*Hybrid)

// WithPlannerConfig sets the request config for planning calls. Reasoning is
// forced on regardless.
func WithPlannerConfig(cfg llm.RequestConfig) HybridOption {
	return func(h *Hybrid) {
		h.plannerCfg = cfg
	}
}

// WithExecutorConfig sets the request config for execution calls.
func WithExecutorConfig(cfg llm.RequestConfig) HybridOption {
	return func(h *Hybrid) {
		h.execCfg = cfg
	}
}

// WithHybridLogger overrides the strategy's logger.
func WithHybridLogger(logger *logging.Logger) HybridOption {
	return func(h *Hybrid) {
		h.logger = logger
	}
}

// NewHybrid creates a hybrid strategy. The planner handles iteration one,
// the executor every iteration after it.
func NewHybrid(planner, executor llm.Provider, opts ...HybridOption) *Hybrid {
	h := &Hybrid{planner: planner, executor: executor}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.Default()
	}
	return h
}

// Name identifies the strategy in logs and configuration.
func (h *Hybrid) Name() string {
	return "hybrid"
}

// ExecuteIteration routes the call to the planner on iteration one and the
// executor afterwards, emitting a StatusUpdate on each stage boundary.
func (h *Hybrid) ExecuteIteration(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, itctx *types.IterationContext, emit EmitFunc) error {
	if itctx.Iteration == 1 {
		return h.plan(ctx, messages, tools, itctx, emit)
	}
	return h.execute(ctx, messages, tools, itctx, emit)
}

// plan runs the reasoning call. Planning content is never streamed as answer
// deltas: if the planner requests tools the content is the plan, and if it
// does not the content is emitted whole as the final response.
func (h *Hybrid) plan(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, _ *types.IterationContext, emit EmitFunc) error {
	emit(types.NewStatusUpdateEvent("analyzing the request", StagePlanning))

	cfg := h.plannerCfg
	cfg.Reasoning = true

	out, err := runModelCall(ctx, h.planner, messages, tools, cfg, StagePlanning, false, emit, h.logger)
	if err != nil {
		return err
	}

	if out.shouldContinue() && out.content != "" {
		emit(types.NewExecutionPlanEvent(out.content, StagePlanning))
	}
	closeIteration(out, emit)
	return nil
}

// execute runs a tool-capable call against the executor provider.
func (h *Hybrid) execute(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, itctx *types.IterationContext, emit EmitFunc) error {
	emit(types.NewStatusUpdateEvent("working through the plan", StageExecuting))

	streamContent := itctx.StreamingMode != types.StreamFinalOnly
	out, err := runModelCall(ctx, h.executor, messages, tools, h.execCfg, StageExecuting, streamContent, emit, h.logger)
	if err != nil {
		return err
	}

	closeIteration(out, emit)
	return nil
}
