// Package tokenizer counts prompt tokens for context budgeting. It wraps a
// tiktoken encoding; conversation counters use the cheaper char/4 estimate
// instead, this package is for deciding what fits in a model's window.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/loomlabs/loom/pkg/types"
)

// defaultEncoding covers current chat models well enough for budgeting.
const defaultEncoding = "cl100k_base"

// Per-message wrapping overhead in chat format: role framing plus priming.
const messageOverheadTokens = 4

// Tokenizer counts tokens against one encoding. Safe for concurrent use.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New creates a tokenizer with the default chat encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", defaultEncoding, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// NewForModel creates a tokenizer with the model's own encoding, falling
// back to the default when the model is unknown.
func NewForModel(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New()
	}
	return &Tokenizer{encoding: enc}, nil
}

// CountTokens returns the token count of the given text.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessageTokens returns the cost of one message including chat framing
// overhead and the text of any tool calls it carries.
func (t *Tokenizer) CountMessageTokens(m *types.Message) int {
	n := messageOverheadTokens + t.CountTokens(m.Content)
	for _, tc := range m.ToolCalls {
		n += t.CountTokens(tc.Name) + t.CountTokens(tc.Arguments)
	}
	return n
}

// CountMessagesTokens returns the total cost of a message slice.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 0
	for _, m := range messages {
		total += t.CountMessageTokens(m)
	}
	return total
}
