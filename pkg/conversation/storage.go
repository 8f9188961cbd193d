// Package conversation manages persistent dialogue history: creating
// conversations, appending messages with cumulative accounting, and loading
// the rolling window handed to each run. Storage backends are pluggable and
// behaviorally interchangeable.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/loomlabs/loom/pkg/types"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// StoredMessage is a message persisted inside a conversation, ordered by
// CreatedAt within it.
type StoredMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Message        *types.Message `json:"message"`
}

// Storage persists conversations and their messages. Implementations must
// return messages in ascending CreatedAt order and ErrNotFound for unknown
// conversation ids.
type Storage interface {
	// SaveConversation inserts or fully replaces a conversation record.
	SaveConversation(ctx context.Context, conv *types.Conversation) error

	// FindConversationByID returns the conversation or ErrNotFound.
	FindConversationByID(ctx context.Context, id string) (*types.Conversation, error)

	// FindConversationsByCallerID returns the caller's conversations, most
	// recently active first, at most limit of them. A limit of zero or
	// less means no limit.
	FindConversationsByCallerID(ctx context.Context, callerID string, limit int) ([]*types.Conversation, error)

	// SaveMessage appends one message record.
	SaveMessage(ctx context.Context, msg *StoredMessage) error

	// FindMessagesByConversationID returns every message of a
	// conversation, oldest first.
	FindMessagesByConversationID(ctx context.Context, conversationID string) ([]*StoredMessage, error)
}
