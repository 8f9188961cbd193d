// Package anthropic implements the model-provider contract for Anthropic's
// Messages API, including the extended-thinking reasoning channel.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/retry"
	"github.com/loomlabs/loom/pkg/types"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096

	// Extended thinking needs a floor; requests below it are rejected.
	minThinkingBudget     = 1024
	defaultThinkingBudget = 10000
)

// Streams that flood consecutive empty events are treated as malformed
// rather than spun on forever.
const maxEmptyStreamEvents = 300

// Provider implements llm.Provider against the Anthropic Messages API.
// Safe for concurrent use; each call gets an independent stream.
type Provider struct {
	client   anthropic.Client
	model    string
	retryCfg retry.Config
	logger   *logging.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider, *[]option.RequestOption)

// WithModel sets the default model for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider, _ *[]option.RequestOption) {
		p.model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(_ *Provider, reqOpts *[]option.RequestOption) {
		*reqOpts = append(*reqOpts, option.WithBaseURL(baseURL))
	}
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(cfg retry.Config) ProviderOption {
	return func(p *Provider, _ *[]option.RequestOption) {
		p.retryCfg = cfg
	}
}

// NewProvider creates an Anthropic provider. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (provide via parameter or ANTHROPIC_API_KEY environment variable)")
	}

	p := &Provider{
		model:    defaultModel,
		retryCfg: retry.DefaultConfig(),
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		opt(p, &reqOpts)
	}

	p.client = anthropic.NewClient(reqOpts...)
	p.logger, _ = logging.NewLogger("llm-anthropic")
	return p, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string {
	return "anthropic"
}

// Capabilities describes what this backend supports.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsStreaming:       true,
		SupportsReasoningStream: true,
		SupportsToolCalling:     true,
	}
}

// Complete performs one blocking round trip.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, cfg llm.RequestConfig) (*llm.Response, error) {
	params, err := p.buildParams(messages, tools, cfg)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	msg, err := retry.DoWithValue(ctx, p.retryCfg, func() (*anthropic.Message, error) {
		m, callErr := p.client.Messages.New(ctx, params)
		if callErr != nil {
			return nil, p.classify(callErr, string(params.Model))
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	return p.extractMessage(msg), nil
}

// StreamCompletion starts a streaming round trip. Stream creation failures
// retry; once chunks have been emitted, a failure surfaces as an error
// chunk instead.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, cfg llm.RequestConfig) (<-chan *llm.StreamChunk, error) {
	params, err := p.buildParams(messages, tools, cfg)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go func() {
		defer close(chunks)

		for attempt := 0; attempt < p.retryCfg.MaxAttempts; attempt++ {
			stream := p.client.Messages.NewStreaming(ctx, params)
			emitted, err := p.processStream(ctx, stream, chunks)
			if err == nil {
				return
			}

			// Mid-stream failures and exhausted budgets are final.
			if emitted > 0 || !llm.IsRetryable(err) || attempt == p.retryCfg.MaxAttempts-1 {
				p.sendChunk(ctx, &llm.StreamChunk{Err: err}, chunks)
				return
			}

			select {
			case <-ctx.Done():
				p.sendChunk(ctx, &llm.StreamChunk{Err: ctx.Err()}, chunks)
				return
			case <-time.After(retry.Backoff(p.retryCfg, attempt)):
			}
		}
	}()
	return chunks, nil
}

// processStream walks the SDK event stream, normalizing events into
// StreamChunks. Tool-use blocks map onto indexed deltas: the block start
// carries id and name, input_json_delta events carry argument fragments,
// all tagged with the block index.
func (p *Provider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *llm.StreamChunk) (int, error) {
	emitted := 0
	emptyEvents := 0
	usage := &types.TokenUsage{}
	finishReason := ""

	send := func(c *llm.StreamChunk) bool {
		if !p.sendChunk(ctx, c, chunks) {
			return false
		}
		emitted++
		return true
	}

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage.PromptTokens = int(start.Message.Usage.InputTokens)
			processed = true

		case "content_block_start":
			blockStart := event.AsContentBlockStart()
			if blockStart.ContentBlock.Type == "tool_use" {
				toolUse := blockStart.ContentBlock.AsToolUse()
				if !send(&llm.StreamChunk{ToolCallDeltas: []llm.ToolCallDelta{{
					Index: int(blockStart.Index),
					ID:    toolUse.ID,
					Type:  types.ToolCallTypeFunction,
					Name:  toolUse.Name,
				}}}) {
					return emitted, nil
				}
				processed = true
			}

		case "content_block_delta":
			blockDelta := event.AsContentBlockDelta()
			switch blockDelta.Delta.Type {
			case "text_delta":
				if blockDelta.Delta.Text != "" {
					if !send(&llm.StreamChunk{ContentDelta: blockDelta.Delta.Text}) {
						return emitted, nil
					}
					processed = true
				}
			case "thinking_delta":
				if blockDelta.Delta.Thinking != "" {
					if !send(&llm.StreamChunk{ReasoningDelta: blockDelta.Delta.Thinking}) {
						return emitted, nil
					}
					processed = true
				}
			case "input_json_delta":
				if blockDelta.Delta.PartialJSON != "" {
					if !send(&llm.StreamChunk{ToolCallDeltas: []llm.ToolCallDelta{{
						Index:     int(blockDelta.Index),
						Arguments: blockDelta.Delta.PartialJSON,
					}}}) {
						return emitted, nil
					}
					processed = true
				}
			}

		case "content_block_stop":
			processed = true

		case "message_delta":
			msgDelta := event.AsMessageDelta()
			usage.CompletionTokens = int(msgDelta.Usage.OutputTokens)
			finishReason = normalizeStopReason(string(msgDelta.Delta.StopReason))
			processed = true

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			p.sendChunk(ctx, &llm.StreamChunk{FinishReason: finishReason, Usage: usage}, chunks)
			return emitted + 1, nil
		}

		if processed {
			emptyEvents = 0
			continue
		}
		emptyEvents++
		if emptyEvents >= maxEmptyStreamEvents {
			return emitted, llm.NewProviderError(p.Name(), llm.ErrKindUnknown,
				fmt.Sprintf("stream appears malformed: %d consecutive empty events", emptyEvents))
		}
	}

	if err := stream.Err(); err != nil {
		return emitted, p.classify(err, p.model)
	}
	return emitted, nil
}

// buildParams maps canonical messages, tools and config into Messages API
// params. System messages are lifted out of the transcript into the
// dedicated system field.
func (p *Provider) buildParams(messages []*types.Message, tools []llm.ToolDefinition, cfg llm.RequestConfig) (anthropic.MessageNewParams, error) {
	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	converted, system, err := convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*cfg.Temperature)
	}
	if len(tools) > 0 {
		convertedTools, err := convertTools(tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = convertedTools
	}
	if cfg.Reasoning {
		budget := int64(cfg.ReasoningBudget)
		if budget < minThinkingBudget {
			budget = defaultThinkingBudget
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

// extractMessage normalizes a non-streaming response.
func (p *Provider) extractMessage(msg *anthropic.Message) *llm.Response {
	out := &llm.Response{
		FinishReason: normalizeStopReason(string(msg.StopReason)),
		Usage: &types.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	var content strings.Builder
	var reasoning strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "thinking":
			reasoning.WriteString(block.Thinking)
		case "tool_use":
			toolUse := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:        toolUse.ID,
				Type:      types.ToolCallTypeFunction,
				Name:      toolUse.Name,
				Arguments: string(toolUse.Input),
			})
		}
	}
	out.Content = content.String()
	out.Reasoning = reasoning.String()
	return out
}

// convertMessages maps the canonical transcript to Messages API params.
// Tool-role replies become tool_result blocks on user messages; assistant
// tool calls become tool_use blocks.
func convertMessages(messages []*types.Message) ([]anthropic.MessageParam, string, error) {
	var result []anthropic.MessageParam
	var system strings.Builder

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)

		case types.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, "", fmt.Errorf("tool call %s has invalid arguments: %w", tc.ID, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case types.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result, system.String(), nil
}

// convertTools maps tool definitions to Messages API tool params.
func convertTools(tools []llm.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %s has invalid parameter schema: %w", t.Name, err)
			}
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("tool %s produced no tool definition", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// classify wraps an SDK error as a typed provider error carrying status and
// body, marked permanent for the retry loop when the class is not
// retry-eligible.
func (p *Provider) classify(err error, model string) error {
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := llm.ClassifyStatus(apiErr.StatusCode)
		perr := llm.NewProviderError(p.Name(), kind, "request failed").
			WithStatus(apiErr.StatusCode).
			WithBody(apiErr.RawJSON()).
			WithModel(model).
			WithCause(err)
		if !kind.Retryable() {
			return retry.Permanent(perr)
		}
		return perr
	}

	kind := llm.ClassifyError(err)
	perr := llm.NewProviderError(p.Name(), kind, err.Error()).
		WithModel(model).WithCause(err)
	if !kind.Retryable() {
		return retry.Permanent(perr)
	}
	return perr
}

func (p *Provider) sendChunk(ctx context.Context, chunk *llm.StreamChunk, chunks chan<- *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return strings.ToLower(reason)
	}
}
