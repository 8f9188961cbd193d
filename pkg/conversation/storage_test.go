package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/pkg/types"
)

// storageUnderTest runs the conformance suite against every backend so the
// in-memory and SQLite implementations stay interchangeable.
func storageUnderTest(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "loom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func newStoredConversation(callerID string) *types.Conversation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &types.Conversation{
		ID:            uuid.NewString(),
		CallerID:      callerID,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
		Status:        types.ConversationActive,
	}
}

func TestStorageConversationRoundTrip(t *testing.T) {
	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := newStoredConversation("caller-1")
			require.NoError(t, storage.SaveConversation(ctx, conv))

			loaded, err := storage.FindConversationByID(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, conv.ID, loaded.ID)
			assert.Equal(t, "caller-1", loaded.CallerID)
			assert.Equal(t, types.ConversationActive, loaded.Status)
		})
	}
}

func TestStorageUnknownConversationReturnsNotFound(t *testing.T) {
	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := storage.FindConversationByID(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorageSaveConversationUpdatesCounters(t *testing.T) {
	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := newStoredConversation("caller-1")
			require.NoError(t, storage.SaveConversation(ctx, conv))

			conv.MessageCount = 4
			conv.ToolCallsCount = 2
			conv.TotalTokens = 120
			require.NoError(t, storage.SaveConversation(ctx, conv))

			loaded, err := storage.FindConversationByID(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, 4, loaded.MessageCount)
			assert.Equal(t, 2, loaded.ToolCallsCount)
			assert.Equal(t, 120, loaded.TotalTokens)
		})
	}
}

func TestStorageMessagesKeepInsertionOrder(t *testing.T) {
	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := newStoredConversation("caller-1")
			require.NoError(t, storage.SaveConversation(ctx, conv))

			base := time.Now().UTC().Truncate(time.Millisecond)
			contents := []string{"first", "second", "third"}
			for i, content := range contents {
				require.NoError(t, storage.SaveMessage(ctx, &StoredMessage{
					ID:             uuid.NewString(),
					ConversationID: conv.ID,
					CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
					Message:        types.NewUserMessage(content),
				}))
			}

			stored, err := storage.FindMessagesByConversationID(ctx, conv.ID)
			require.NoError(t, err)
			require.Len(t, stored, 3)
			for i, content := range contents {
				assert.Equal(t, content, stored[i].Message.Content)
			}
		})
	}
}

func TestStorageMessagesPreserveToolCalls(t *testing.T) {
	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := newStoredConversation("caller-1")
			require.NoError(t, storage.SaveConversation(ctx, conv))

			msg := types.NewAssistantToolCallMessage("", []types.ToolCall{{
				ID:        "call_1",
				Type:      types.ToolCallTypeFunction,
				Name:      "search",
				Arguments: `{"query":"go"}`,
			}})
			require.NoError(t, storage.SaveMessage(ctx, &StoredMessage{
				ID:             uuid.NewString(),
				ConversationID: conv.ID,
				CreatedAt:      time.Now().UTC(),
				Message:        msg,
			}))

			stored, err := storage.FindMessagesByConversationID(ctx, conv.ID)
			require.NoError(t, err)
			require.Len(t, stored, 1)
			require.Len(t, stored[0].Message.ToolCalls, 1)
			assert.Equal(t, "search", stored[0].Message.ToolCalls[0].Name)
			assert.Equal(t, `{"query":"go"}`, stored[0].Message.ToolCalls[0].Arguments)
		})
	}
}

func TestStorageFindConversationsByCaller(t *testing.T) {
	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			older := newStoredConversation("caller-1")
			older.LastMessageAt = older.LastMessageAt.Add(-time.Hour)
			newer := newStoredConversation("caller-1")
			other := newStoredConversation("caller-2")
			for _, conv := range []*types.Conversation{older, newer, other} {
				require.NoError(t, storage.SaveConversation(ctx, conv))
			}

			found, err := storage.FindConversationsByCallerID(ctx, "caller-1", 0)
			require.NoError(t, err)
			require.Len(t, found, 2)
			assert.Equal(t, newer.ID, found[0].ID)
			assert.Equal(t, older.ID, found[1].ID)

			limited, err := storage.FindConversationsByCallerID(ctx, "caller-1", 1)
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, newer.ID, limited[0].ID)
		})
	}
}
