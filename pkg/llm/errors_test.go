package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, ErrKindAuth},
		{403, ErrKindAuth},
		{408, ErrKindTimeout},
		{429, ErrKindRateLimit},
		{400, ErrKindInvalidRequest},
		{422, ErrKindInvalidRequest},
		{500, ErrKindServer},
		{503, ErrKindServer},
		{200, ErrKindUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status))
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline exceeded", context.DeadlineExceeded, ErrKindTimeout},
		{"rate limit message", errors.New("rate limit exceeded, retry later"), ErrKindRateLimit},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ErrKindNetwork},
		{"unknown", errors.New("something odd"), ErrKindUnknown},
		{"wrapped provider error keeps kind", fmt.Errorf("call failed: %w",
			NewProviderError("openai", ErrKindServer, "bad gateway").WithStatus(502)), ErrKindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, ErrKindRateLimit.Retryable())
	assert.True(t, ErrKindTimeout.Retryable())
	assert.True(t, ErrKindServer.Retryable())
	assert.True(t, ErrKindNetwork.Retryable())
	assert.False(t, ErrKindAuth.Retryable())
	assert.False(t, ErrKindInvalidRequest.Retryable())
	assert.False(t, ErrKindUnknown.Retryable())
}

func TestProviderErrorFormat(t *testing.T) {
	err := NewProviderError("anthropic", ErrKindRateLimit, "overloaded").
		WithStatus(429).
		WithModel("claude-sonnet-4-20250514")

	msg := err.Error()
	assert.Contains(t, msg, "provider anthropic")
	assert.Contains(t, msg, "rate_limit")
	assert.Contains(t, msg, "status 429")
	assert.Contains(t, msg, "overloaded")
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying transport failure")
	err := NewProviderError("openai", ErrKindNetwork, "request failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}
