// Package orchestrator drives complete runs: it owns the state machine, the
// iteration loop, tool execution, and the wire event stream. A strategy
// decides what one iteration does; the orchestrator decides what happens
// between iterations and guarantees exactly one terminal event per run.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/loomlabs/loom/pkg/conversation"
	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/llm/tokenizer"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/strategy"
	"github.com/loomlabs/loom/pkg/tools"
	"github.com/loomlabs/loom/pkg/types"
	"github.com/loomlabs/loom/pkg/wire"
)

// DefaultMaxIterations bounds the loop when not configured otherwise.
const DefaultMaxIterations = 10

// maxIterationsNotice is appended as the final answer when the loop runs out
// of iterations with work still pending.
const maxIterationsNotice = "I reached the iteration limit before finishing. Here is what I have so far."

// Orchestrator coordinates one or more runs. It is safe for concurrent use;
// per-run state lives in the run struct.
type Orchestrator struct {
	strategy      strategy.Strategy
	finalizer     llm.Provider
	finalizeCfg   llm.RequestConfig
	registry      *tools.Registry
	manager       *conversation.Manager
	tokenizer     *tokenizer.Tokenizer
	maxIterations int
	streamingMode types.StreamingMode
	systemPrompt  string
	logger        *logging.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxIterations caps loop passes per run.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxIterations = n
		}
	}
}

// WithSystemPrompt sets the system message prepended to every model call.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

// WithStreamingMode selects progressive or final-only delivery of answer
// chunks.
func WithStreamingMode(mode types.StreamingMode) Option {
	return func(o *Orchestrator) {
		o.streamingMode = mode
	}
}

// WithFinalizeConfig sets the request config for the clean completion call
// behind the finalize sentinel.
func WithFinalizeConfig(cfg llm.RequestConfig) Option {
	return func(o *Orchestrator) {
		o.finalizeCfg = cfg
	}
}

// WithOrchestratorLogger overrides the orchestrator's logger.
func WithOrchestratorLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator. The finalizer provider serves the clean
// completion call of the finalize path; it is typically the same provider
// the strategy uses.
func New(strat strategy.Strategy, finalizer llm.Provider, registry *tools.Registry, manager *conversation.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		strategy:      strat,
		finalizer:     finalizer,
		registry:      registry,
		manager:       manager,
		maxIterations: DefaultMaxIterations,
		streamingMode: types.StreamProgressive,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	if o.tokenizer == nil {
		// Best effort; prompt sizes just go unlogged without it.
		o.tokenizer, _ = tokenizer.New()
	}
	return o
}

// run holds the mutable state of one Run invocation.
type run struct {
	o              *Orchestrator
	emitter        *wire.Emitter
	conversationID string
	state          State
	terminalSent   bool
	usage          types.TokenUsage
	lastContent    string
}

// iterationResult collects what one strategy iteration produced.
type iterationResult struct {
	toolCalls    []types.ToolCall
	finalContent string
	complete     bool
	usage        *types.TokenUsage
}

// Run executes one full turn of the conversation, writing wire events to the
// emitter. Exactly one terminal event is emitted regardless of outcome; the
// returned error mirrors the Error event when the run failed.
func (o *Orchestrator) Run(ctx context.Context, emitter *wire.Emitter, conversationID, userMessage string) error {
	r := &run{o: o, emitter: emitter, conversationID: conversationID, state: StateLoading}

	if err := r.loop(ctx, userMessage); err != nil {
		r.fail(err)
		return err
	}
	return nil
}

func (r *run) loop(ctx context.Context, userMessage string) error {
	o := r.o

	r.emit(wire.NewStatusUpdateEvent(r.conversationID, "loading conversation history", string(StateLoading)))
	if err := o.manager.AddMessage(ctx, r.conversationID, types.NewUserMessage(userMessage)); err != nil {
		return err
	}
	cctx, err := o.manager.LoadConversation(ctx, r.conversationID)
	if err != nil {
		return err
	}

	messages := make([]*types.Message, 0, len(cctx.Messages)+1)
	if o.systemPrompt != "" {
		messages = append(messages, types.NewSystemMessage(o.systemPrompt))
	}
	messages = append(messages, cctx.Messages...)

	defs := o.registry.Definitions(true)

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		itctx := &types.IterationContext{
			ConversationID: r.conversationID,
			Iteration:      iteration,
			MaxIterations:  o.maxIterations,
			StreamingMode:  o.streamingMode,
		}

		if o.tokenizer != nil {
			o.logger.Debugf("iteration %d: sending %d prompt tokens to the model",
				iteration, o.tokenizer.CountMessagesTokens(messages))
		}

		result := &iterationResult{}
		if err := o.strategy.ExecuteIteration(ctx, messages, defs, itctx, r.translate(result, iteration)); err != nil {
			return err
		}
		if !result.complete {
			return fmt.Errorf("strategy %s ended iteration %d without completing it", o.strategy.Name(), iteration)
		}
		r.accumulate(result.usage)

		if len(result.toolCalls) == 0 {
			return r.complete(ctx, result.finalContent, iteration)
		}

		if call, ok := findFinalize(result.toolCalls); ok {
			return r.finalize(ctx, messages, call, iteration)
		}

		if result.finalContent != "" {
			r.lastContent = result.finalContent
		}
		assistant := types.NewAssistantToolCallMessage(result.finalContent, result.toolCalls)
		messages = append(messages, assistant)
		if err := o.manager.AddMessage(ctx, r.conversationID, assistant); err != nil {
			return err
		}

		results, err := r.executeToolCalls(ctx, result.toolCalls)
		if err != nil {
			return err
		}
		for _, toolResult := range results {
			toolMsg := types.NewToolMessage(toolResult.ToolCallID, toolResult.Result)
			messages = append(messages, toolMsg)
			if err := o.manager.AddMessage(ctx, r.conversationID, toolMsg); err != nil {
				return err
			}
		}
	}

	// Out of iterations with tools still pending: close the run cleanly
	// with what we have.
	o.logger.Warnf("conversation %s hit the iteration limit of %d", r.conversationID, o.maxIterations)
	content := r.lastContent
	if content == "" {
		content = maxIterationsNotice
	}
	return r.complete(ctx, content, o.maxIterations)
}

// translate returns the strategy emit callback for one iteration, mapping
// internal events onto the wire protocol and capturing the iteration result.
//
// Whether a content delta belongs to the final answer is unknowable while
// the model is still streaming: tool-call deltas may follow. Chunks are
// therefore held until the iteration shows its hand, then flushed with
// isFinalAnswer true (final answer) or false (commentary before tool calls).
func (r *run) translate(result *iterationResult, iteration int) strategy.EmitFunc {
	var pending []string
	toolsSeen := false

	flush := func(isFinalAnswer bool) {
		for _, content := range pending {
			r.emit(wire.NewResponseChunkEvent(r.conversationID, content, isFinalAnswer))
		}
		pending = nil
	}

	return func(e *types.StrategyEvent) {
		switch e.Type {
		case types.EventContentChunk:
			if toolsSeen {
				r.emit(wire.NewResponseChunkEvent(r.conversationID, e.Content, false))
			} else {
				pending = append(pending, e.Content)
			}
		case types.EventReasoningChunk:
			r.emit(wire.NewReasoningTraceEvent(r.conversationID, e.Content, e.Stage))
		case types.EventStatusUpdate:
			r.transition(stageToState(e.Stage), iteration)
			r.emit(wire.NewStatusUpdateEvent(r.conversationID, e.Content, e.Stage))
		case types.EventExecutionPlan:
			r.emit(wire.NewExecutionPlanEvent(r.conversationID, e.Content))
		case types.EventToolCallDetected:
			toolsSeen = true
			flush(false)
			if len(e.ToolCalls) > 0 {
				r.transition(StateExecuting, iteration)
				r.emit(wire.NewStatusUpdateEvent(r.conversationID,
					fmt.Sprintf("preparing to call %s", e.ToolCalls[0].Name), string(StateExecuting)))
			}
		case types.EventToolCallsComplete:
			toolsSeen = true
			flush(false)
			result.toolCalls = e.ToolCalls
			result.finalContent = e.Content
		case types.EventFinalResponse:
			r.transition(StateSynthesis, iteration)
			flush(true)
			result.finalContent = e.Content
		case types.EventIterationComplete:
			result.complete = true
			result.usage = e.Usage
		}
	}
}

// executeToolCalls runs every call of the iteration concurrently and emits
// start and result events. Individual tool failures come back as failed
// results; only context cancellation aborts the run.
func (r *run) executeToolCalls(ctx context.Context, calls []types.ToolCall) ([]*types.ToolResult, error) {
	r.transition(StateExecuting, 0)

	for _, call := range calls {
		args, err := call.ParseArguments()
		if err != nil {
			args = nil
		}
		r.emit(wire.NewToolCallStartEvent(r.conversationID, call, args))
	}

	results := make([]*types.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = r.o.registry.Execute(gctx, call)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, result := range results {
		if !result.Success {
			r.o.logger.Warnf("tool %s failed for call %s: %s", result.ToolName, result.ToolCallID, result.Error)
		}
		r.emit(wire.NewToolCallResultEvent(r.conversationID, result))
	}
	return results, nil
}

// finalize handles the finalize sentinel: its arguments become the
// instruction for one clean completion call, streamed verbatim as the final
// answer.
func (r *run) finalize(ctx context.Context, messages []*types.Message, call types.ToolCall, iteration int) error {
	r.transition(StateSynthesis, iteration)
	r.emit(wire.NewStatusUpdateEvent(r.conversationID, "writing the final answer", string(StateSynthesis)))

	var args tools.FinalizeArguments
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return fmt.Errorf("finalize arguments are not valid JSON: %w", err)
	}

	prompt := fmt.Sprintf(
		"Write the final answer for the user.\n\nQuestion:\n%s\n\nGathered context:\n%s",
		args.Question, args.Context)
	finalMessages := append(append([]*types.Message{}, messages...), types.NewUserMessage(prompt))

	cfg := r.o.finalizeCfg
	cfg.Reasoning = false

	content, usage, err := r.streamCompletion(ctx, finalMessages, cfg)
	if err != nil {
		return err
	}
	r.accumulate(usage)
	return r.complete(ctx, content, iteration)
}

// streamCompletion performs the no-tools completion call of the finalize
// path, forwarding every delta as a final-answer response chunk.
func (r *run) streamCompletion(ctx context.Context, messages []*types.Message, cfg llm.RequestConfig) (string, *types.TokenUsage, error) {
	if !r.o.finalizer.Capabilities().SupportsStreaming {
		resp, err := r.o.finalizer.Complete(ctx, messages, nil, cfg)
		if err != nil {
			return "", nil, err
		}
		r.emit(wire.NewResponseChunkEvent(r.conversationID, resp.Content, true))
		return resp.Content, resp.Usage, nil
	}

	ch, err := r.o.finalizer.StreamCompletion(ctx, messages, nil, cfg)
	if err != nil {
		return "", nil, err
	}

	var content string
	var usage *types.TokenUsage
	for chunk := range ch {
		if chunk.IsError() {
			return "", nil, chunk.Err
		}
		if chunk.ContentDelta != "" {
			content += chunk.ContentDelta
			r.emit(wire.NewResponseChunkEvent(r.conversationID, chunk.ContentDelta, true))
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	if ctx.Err() != nil {
		return "", nil, ctx.Err()
	}
	return content, usage, nil
}

// complete persists the final assistant message and emits the successful
// terminal event, reporting how many iterations the run used.
func (r *run) complete(ctx context.Context, content string, iterationsUsed int) error {
	if content != "" {
		if err := r.o.manager.AddMessage(ctx, r.conversationID, types.NewAssistantMessage(content)); err != nil {
			return err
		}
	}
	r.transition(StateCompleted, iterationsUsed)
	r.emitTerminal(wire.NewCompletedEvent(r.conversationID, content, iterationsUsed, r.usageTotal()))
	return nil
}

// fail emits the failure terminal event unless a terminal was already sent.
func (r *run) fail(err error) {
	r.o.logger.Errorf("run for conversation %s failed: %v", r.conversationID, err)
	r.transition(StateError, 0)
	r.emitTerminal(wire.NewErrorEvent(r.conversationID, err))
}

// transition moves the state machine, emitting a stage transition event on
// every actual change.
func (r *run) transition(to State, iteration int) {
	if to == r.state || r.state.Terminal() {
		return
	}
	from := r.state
	r.state = to
	r.emit(wire.NewStageTransitionEvent(r.conversationID, string(from), string(to), iteration))
}

func (r *run) accumulate(usage *types.TokenUsage) {
	if usage == nil {
		return
	}
	r.usage.PromptTokens += usage.PromptTokens
	r.usage.CompletionTokens += usage.CompletionTokens
	r.usage.TotalTokens += usage.TotalTokens
}

func (r *run) usageTotal() *types.TokenUsage {
	if r.usage == (types.TokenUsage{}) {
		return nil
	}
	u := r.usage
	return &u
}

func (r *run) emit(event *wire.Event) {
	if event.IsTerminal() {
		// Terminal events go through emitTerminal.
		return
	}
	if err := r.emitter.Emit(event); err != nil {
		r.o.logger.Warnf("failed to emit %s event: %v", event.Type, err)
	}
}

func (r *run) emitTerminal(event *wire.Event) {
	if r.terminalSent {
		return
	}
	r.terminalSent = true
	if err := r.emitter.Emit(event); err != nil {
		r.o.logger.Warnf("failed to emit terminal %s event: %v", event.Type, err)
	}
}

// stageToState maps strategy stage names onto orchestrator states.
func stageToState(stage string) State {
	switch stage {
	case strategy.StagePlanning:
		return StatePlanning
	case strategy.StageSynthesis:
		return StateSynthesis
	default:
		return StateExecuting
	}
}

// findFinalize returns the finalize sentinel call when the model requested
// it, preferring it over any other call in the same iteration.
func findFinalize(calls []types.ToolCall) (types.ToolCall, bool) {
	for _, call := range calls {
		if tools.IsFinalize(call.Name) {
			return call, true
		}
	}
	return types.ToolCall{}, false
}
