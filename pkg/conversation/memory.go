package conversation

import (
	"context"
	"sort"
	"sync"

	"github.com/loomlabs/loom/pkg/types"
)

// MemoryStorage keeps conversations in process memory. It is the default
// backend for tests and ephemeral deployments and behaves identically to the
// durable backends.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[string]*types.Conversation
	messages      map[string][]*StoredMessage
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*types.Conversation),
		messages:      make(map[string][]*StoredMessage),
	}
}

func (s *MemoryStorage) SaveConversation(_ context.Context, conv *types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *conv
	s.conversations[conv.ID] = &copied
	return nil
}

func (s *MemoryStorage) FindConversationByID(_ context.Context, id string) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *MemoryStorage) FindConversationsByCallerID(_ context.Context, callerID string, limit int) ([]*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Conversation
	for _, conv := range s.conversations {
		if conv.CallerID == callerID {
			copied := *conv
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) SaveMessage(_ context.Context, msg *StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &copied)
	return nil
}

func (s *MemoryStorage) FindMessagesByConversationID(_ context.Context, conversationID string) ([]*StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[conversationID]
	out := make([]*StoredMessage, len(stored))
	copy(out, stored)
	return out, nil
}
