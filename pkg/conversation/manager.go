package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/types"
)

// DefaultWindowSize is the number of most-recent messages loaded into a
// run's working context when not configured otherwise.
const DefaultWindowSize = 50

// Manager is the conversation context manager. It owns the cumulative
// counters on the conversation record and the rolling window assembled for
// each run; raw persistence goes through the configured Storage.
type Manager struct {
	storage Storage
	window  int
	logger  *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithWindowSize sets how many most-recent messages LoadConversation
// returns. Values below one fall back to the default.
func WithWindowSize(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 1 {
			m.window = n
		}
	}
}

// WithManagerLogger overrides the manager's logger.
func WithManagerLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager on the given storage backend.
func NewManager(storage Storage, opts ...ManagerOption) *Manager {
	m := &Manager{
		storage: storage,
		window:  DefaultWindowSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.Default()
	}
	return m
}

// CreateConversation starts a new conversation for the caller, optionally
// seeded with an initial message.
func (m *Manager) CreateConversation(ctx context.Context, callerID string, initial *types.Message) (*types.Conversation, error) {
	now := time.Now().UTC()
	conv := &types.Conversation{
		ID:            uuid.NewString(),
		CallerID:      callerID,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
		Status:        types.ConversationActive,
	}
	if err := m.storage.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	m.logger.Infof("created conversation %s for caller %s", conv.ID, callerID)

	if initial != nil {
		if err := m.AddMessage(ctx, conv.ID, initial); err != nil {
			return nil, err
		}
		return m.storage.FindConversationByID(ctx, conv.ID)
	}
	return conv, nil
}

// LoadConversation builds the working context for a run: the conversation
// record plus its most recent window of messages in original order.
func (m *Manager) LoadConversation(ctx context.Context, id string) (*types.ConversationContext, error) {
	conv, err := m.storage.FindConversationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stored, err := m.storage.FindMessagesByConversationID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for conversation %s: %w", id, err)
	}
	if len(stored) > m.window {
		stored = stored[len(stored)-m.window:]
	}

	messages := make([]*types.Message, 0, len(stored))
	windowTokens := 0
	for _, s := range stored {
		messages = append(messages, s.Message)
		windowTokens += s.Message.EstimateTokens()
	}

	return &types.ConversationContext{
		Conversation: conv,
		Messages:     messages,
		WindowTokens: windowTokens,
	}, nil
}

// AddMessage appends a message and advances the conversation's cumulative
// counters. Counters only ever grow; trimming the window never rolls them
// back.
func (m *Manager) AddMessage(ctx context.Context, conversationID string, msg *types.Message) error {
	conv, err := m.storage.FindConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := m.storage.SaveMessage(ctx, &StoredMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		CreatedAt:      now,
		Message:        msg,
	}); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	conv.MessageCount++
	conv.ToolCallsCount += len(msg.ToolCalls)
	conv.TotalTokens += msg.EstimateTokens()
	conv.LastMessageAt = now
	conv.UpdatedAt = now

	if err := m.storage.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", conversationID, err)
	}
	return nil
}

// GetRecentConversations lists the caller's conversations, most recently
// active first.
func (m *Manager) GetRecentConversations(ctx context.Context, callerID string, limit int) ([]*types.Conversation, error) {
	return m.storage.FindConversationsByCallerID(ctx, callerID, limit)
}
