// Package openai implements the model-provider contract for OpenAI and
// OpenAI-compatible chat-completion APIs.
//
// Streaming uses raw HTTP so the SSE stream can be reassembled line by line
// regardless of how the network fragments it; this gives better
// compatibility with OpenAI-compatible servers that emit comments or
// non-standard spacing than SDK-level streaming does.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/llm/stream"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/retry"
	"github.com/loomlabs/loom/pkg/types"
)

// DefaultBaseURL is the standard OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

const defaultModel = "gpt-4o"

// Provider implements llm.Provider against a chat-completions endpoint.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	retryCfg   retry.Config
	logger     *logging.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the default model for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint (Azure,
// local servers, proxies).
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(cfg retry.Config) ProviderOption {
	return func(p *Provider) {
		p.retryCfg = cfg
	}
}

// WithTimeout sets the per-call HTTP timeout. Timeouts classify as
// transient and go through the retry policy.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// NewProvider creates an OpenAI provider. An empty apiKey falls back to
// OPENAI_API_KEY; the base URL falls back to OPENAI_BASE_URL before the
// public endpoint.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      defaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
		retryCfg:   retry.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = strings.TrimSuffix(envBaseURL, "/")
		}
	}

	p.logger, _ = logging.NewLogger("llm-openai")
	return p, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string {
	return "openai"
}

// Capabilities describes what this backend supports.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsStreaming:       true,
		SupportsReasoningStream: false,
		SupportsToolCalling:     true,
	}
}

// Complete performs one blocking round trip.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, cfg llm.RequestConfig) (*llm.Response, error) {
	body, err := p.buildRequestBody(messages, tools, cfg, false)
	if err != nil {
		return nil, err
	}

	resp, err := retry.DoWithValue(ctx, p.retryCfg, func() (*http.Response, error) {
		return p.send(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return p.extractResponse(resp.Body, cfg)
}

// StreamCompletion starts a streaming round trip. Only the initial request
// is retried; once the stream is live, failures surface as an error chunk.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition, cfg llm.RequestConfig) (<-chan *llm.StreamChunk, error) {
	body, err := p.buildRequestBody(messages, tools, cfg, true)
	if err != nil {
		return nil, err
	}

	resp, err := retry.DoWithValue(ctx, p.retryCfg, func() (*http.Response, error) {
		return p.send(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStream(ctx, resp, chunks)
	return chunks, nil
}

// buildRequestBody maps canonical messages, tools and config into the
// chat-completions request shape.
func (p *Provider) buildRequestBody(messages []*types.Message, tools []llm.ToolDefinition, cfg llm.RequestConfig, streaming bool) ([]byte, error) {
	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	reqBody := map[string]interface{}{
		"model":    model,
		"messages": convertMessages(messages),
	}
	if streaming {
		reqBody["stream"] = true
		reqBody["stream_options"] = map[string]interface{}{"include_usage": true}
	}
	if cfg.Temperature != nil {
		reqBody["temperature"] = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		reqBody["max_tokens"] = cfg.MaxTokens
	}
	if len(tools) > 0 {
		converted, err := convertTools(tools)
		if err != nil {
			return nil, err
		}
		reqBody["tools"] = converted
	}
	for k, v := range cfg.Extras {
		reqBody[k] = v
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

// send posts the request body and validates the status. Non-success
// responses become classified provider errors, marked permanent when the
// class is not retry-eligible.
func (p *Provider) send(ctx context.Context, body []byte) (*http.Response, error) {
	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, llm.NewProviderError(p.Name(), llm.ClassifyError(err), "request failed").
			WithModel(p.model).WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()

		kind := llm.ClassifyStatus(resp.StatusCode)
		perr := llm.NewProviderError(p.Name(), kind, "API request failed").
			WithStatus(resp.StatusCode).
			WithBody(string(errBody)).
			WithModel(p.model)
		if !kind.Retryable() {
			return nil, retry.Permanent(perr)
		}
		return nil, perr
	}

	return resp, nil
}

// sseData is the wire shape of one chat-completions stream chunk.
type sseData struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// processStream walks the SSE body line by line through the frame
// assembler, normalizing each surviving data line into a StreamChunk.
func (p *Provider) processStream(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	for line := range stream.Lines(ctx, resp.Body, p.logger) {
		if !isSSEDataLine(line) {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return
		}

		chunk, ok := p.extractStreamChunk(data)
		if !ok {
			continue
		}
		if !p.sendChunk(ctx, chunk, chunks) {
			return
		}
	}

	if err := ctx.Err(); err != nil {
		p.sendChunk(ctx, &llm.StreamChunk{Err: err}, chunks)
	}
}

// isSSEDataLine filters SSE comments and non-data fields.
func isSSEDataLine(line string) bool {
	return !strings.HasPrefix(line, ":") && strings.HasPrefix(line, "data: ")
}

// extractStreamChunk normalizes one data line. Malformed payloads are
// dropped, not fatal.
func (p *Provider) extractStreamChunk(data string) (*llm.StreamChunk, bool) {
	var raw sseData
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		p.logger.Warnf("dropping malformed stream payload: %v", err)
		return nil, false
	}

	chunk := &llm.StreamChunk{}
	if raw.Usage != nil {
		chunk.Usage = &types.TokenUsage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		}
	}
	if len(raw.Choices) == 0 {
		// Usage-only frames still matter; empty frames do not.
		return chunk, raw.Usage != nil
	}

	choice := raw.Choices[0]
	chunk.ContentDelta = choice.Delta.Content
	chunk.ReasoningDelta = choice.Delta.ReasoningContent
	for _, tc := range choice.Delta.ToolCalls {
		chunk.ToolCallDeltas = append(chunk.ToolCallDeltas, llm.ToolCallDelta{
			Index:     tc.Index,
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		chunk.FinishReason = strings.ToLower(*choice.FinishReason)
	}
	return chunk, true
}

func (p *Provider) sendChunk(ctx context.Context, chunk *llm.StreamChunk, chunks chan<- *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// completionResponse is the wire shape of a non-streaming response.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// extractResponse normalizes a non-streaming response body.
func (p *Provider) extractResponse(body io.Reader, cfg llm.RequestConfig) (*llm.Response, error) {
	var raw completionResponse
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, llm.NewProviderError(p.Name(), llm.ErrKindUnknown, "failed to decode response").
			WithModel(cfg.Model).WithCause(err)
	}
	if len(raw.Choices) == 0 {
		return nil, llm.NewProviderError(p.Name(), llm.ErrKindUnknown, "response contained no choices").
			WithModel(cfg.Model)
	}

	choice := raw.Choices[0]
	out := &llm.Response{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		FinishReason: strings.ToLower(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		typ := tc.Type
		if typ == "" {
			typ = types.ToolCallTypeFunction
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Type:      typ,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if raw.Usage != nil {
		out.Usage = &types.TokenUsage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		}
	}
	return out, nil
}

// convertMessages maps canonical messages to the SDK's param unions.
// Assistant messages carrying tool calls and tool-role replies need the
// structured forms; the rest use the SDK helpers.
func convertMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case types.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case types.RoleAssistant:
			if msg.HasToolCalls() {
				out = append(out, assistantToolCallMessage(msg))
			} else {
				out = append(out, openai.AssistantMessage(msg.Content))
			}
		case types.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func assistantToolCallMessage(msg *types.Message) openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}

	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// convertTools maps tool definitions to the chat-completions tool shape.
func convertTools(tools []llm.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		var params map[string]interface{}
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &params); err != nil {
				return nil, fmt.Errorf("tool %s has invalid parameter schema: %w", t.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out, nil
}
