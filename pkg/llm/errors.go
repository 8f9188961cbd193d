package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a provider failure for retry decisions.
type ErrorKind string

const (
	ErrKindRateLimit      ErrorKind = "rate_limit"      // ErrKindRateLimit marks a 429 or quota rejection; retryable.
	ErrKindTimeout        ErrorKind = "timeout"         // ErrKindTimeout marks a deadline or network timeout; retryable.
	ErrKindServer         ErrorKind = "server_error"    // ErrKindServer marks a 5xx backend failure; retryable.
	ErrKindNetwork        ErrorKind = "network"         // ErrKindNetwork marks a transport-level I/O failure; retryable.
	ErrKindAuth           ErrorKind = "auth"            // ErrKindAuth marks a 401/403 credential failure; permanent.
	ErrKindInvalidRequest ErrorKind = "invalid_request" // ErrKindInvalidRequest marks a 4xx client error; permanent.
	ErrKindUnknown        ErrorKind = "unknown"         // ErrKindUnknown marks an unclassified failure; not retried.
)

// Retryable reports whether failures of this kind are worth another attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindRateLimit, ErrKindTimeout, ErrKindServer, ErrKindNetwork:
		return true
	default:
		return false
	}
}

// ProviderError is the typed failure every backend surfaces. It keeps the
// HTTP status and raw response body for diagnostics while the Kind drives
// retry behavior.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Status   int
	Body     string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("provider %s", e.Provider)}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model %s", e.Model))
	}
	parts = append(parts, string(e.Kind))
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError builds a classified error for the given backend.
func NewProviderError(provider string, kind ErrorKind, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message}
}

// WithStatus attaches the HTTP status code.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	return e
}

// WithBody attaches the raw response body.
func (e *ProviderError) WithBody(body string) *ProviderError {
	e.Body = body
	return e
}

// WithModel attaches the model the call targeted.
func (e *ProviderError) WithModel(model string) *ProviderError {
	e.Model = model
	return e
}

// WithCause attaches the underlying error.
func (e *ProviderError) WithCause(cause error) *ProviderError {
	e.Cause = cause
	return e
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrKindAuth
	case status == 408:
		return ErrKindTimeout
	case status == 429:
		return ErrKindRateLimit
	case status >= 500:
		return ErrKindServer
	case status >= 400:
		return ErrKindInvalidRequest
	default:
		return ErrKindUnknown
	}
}

// ClassifyError maps an arbitrary error to an error kind, preserving the
// kind of an already-classified ProviderError.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return ErrKindRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return ErrKindTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"), strings.Contains(msg, "eof"):
		return ErrKindNetwork
	default:
		return ErrKindUnknown
	}
}

// IsRetryable reports whether the error is worth another provider attempt.
func IsRetryable(err error) bool {
	return ClassifyError(err).Retryable()
}
