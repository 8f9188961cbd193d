package strategy

import (
	"context"

	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/types"
)

// SingleModel drives every iteration with one tool-capable provider. It is
// the default strategy: stream the call, forward content deltas, and hand
// any assembled tool calls back to the orchestrator.
type SingleModel struct {
	provider llm.Provider
	cfg      llm.RequestConfig
	logger   *logging.Logger
}

// SingleModelOption configures a SingleModel strategy.
type SingleModelOption func(*SingleModel)

// WithRequestConfig sets the per-call config used for every iteration.
func WithRequestConfig(cfg llm.RequestConfig) SingleModelOption {
	return func(s *SingleModel) {
		s.cfg = cfg
	}
}

// WithLogger overrides the strategy's logger.
func WithLogger(logger *logging.Logger) SingleModelOption {
	return func(s *SingleModel) {
		s.logger = logger
	}
}

// NewSingleModel creates a single-model strategy on the given provider.
func NewSingleModel(provider llm.Provider, opts ...SingleModelOption) *SingleModel {
	s := &SingleModel{provider: provider}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// Name identifies the strategy in logs and configuration.
func (s *SingleModel) Name() string {
	return "single-model"
}

// ExecuteIteration performs one streamed model call. Content deltas are
// emitted progressively unless the iteration asks for final-only streaming.
func (s *SingleModel) ExecuteIteration(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, itctx *types.IterationContext, emit EmitFunc) error {
	streamContent := itctx.StreamingMode != types.StreamFinalOnly

	out, err := runModelCall(ctx, s.provider, messages, tools, s.cfg, StageExecuting, streamContent, emit, s.logger)
	if err != nil {
		return err
	}

	closeIteration(out, emit)
	return nil
}
