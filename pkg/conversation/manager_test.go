package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/pkg/types"
)

func TestCreateConversationWithInitialMessage(t *testing.T) {
	m := NewManager(NewMemoryStorage())
	ctx := context.Background()

	conv, err := m.CreateConversation(ctx, "caller-1", types.NewUserMessage("hello there"))
	require.NoError(t, err)
	assert.Equal(t, "caller-1", conv.CallerID)
	assert.Equal(t, types.ConversationActive, conv.Status)
	assert.Equal(t, 1, conv.MessageCount)
	assert.Equal(t, 3, conv.TotalTokens)

	loaded, err := m.LoadConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "hello there", loaded.Messages[0].Content)
}

func TestCreateConversationWithoutInitialMessage(t *testing.T) {
	m := NewManager(NewMemoryStorage())

	conv, err := m.CreateConversation(context.Background(), "caller-1", nil)
	require.NoError(t, err)
	assert.Zero(t, conv.MessageCount)
	assert.Zero(t, conv.TotalTokens)
}

func TestAddMessageAdvancesCounters(t *testing.T) {
	m := NewManager(NewMemoryStorage())
	ctx := context.Background()

	conv, err := m.CreateConversation(ctx, "caller-1", nil)
	require.NoError(t, err)

	require.NoError(t, m.AddMessage(ctx, conv.ID, types.NewUserMessage("what is the weather")))
	require.NoError(t, m.AddMessage(ctx, conv.ID, types.NewAssistantToolCallMessage("", []types.ToolCall{
		{ID: "call_1", Name: "weather", Arguments: "{}"},
		{ID: "call_2", Name: "clock", Arguments: "{}"},
	})))

	loaded, err := m.LoadConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Conversation.MessageCount)
	assert.Equal(t, 2, loaded.Conversation.ToolCallsCount)
	// 19 chars → 5 tokens, empty content → 1 token minimum.
	assert.Equal(t, 6, loaded.Conversation.TotalTokens)
	assert.True(t, loaded.Conversation.UpdatedAt.After(conv.CreatedAt) ||
		loaded.Conversation.UpdatedAt.Equal(conv.CreatedAt))
}

func TestAddMessageToUnknownConversation(t *testing.T) {
	m := NewManager(NewMemoryStorage())
	err := m.AddMessage(context.Background(), "missing", types.NewUserMessage("hi"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadConversationAppliesWindow(t *testing.T) {
	m := NewManager(NewMemoryStorage(), WithWindowSize(3))
	ctx := context.Background()

	conv, err := m.CreateConversation(ctx, "caller-1", nil)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.AddMessage(ctx, conv.ID, types.NewUserMessage(fmt.Sprintf("message %d", i))))
	}

	loaded, err := m.LoadConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 3)
	assert.Equal(t, "message 3", loaded.Messages[0].Content)
	assert.Equal(t, "message 5", loaded.Messages[2].Content)

	// Counters stay cumulative even though the window trims messages.
	assert.Equal(t, 5, loaded.Conversation.MessageCount)
}

func TestLoadConversationComputesWindowTokens(t *testing.T) {
	m := NewManager(NewMemoryStorage())
	ctx := context.Background()

	conv, err := m.CreateConversation(ctx, "caller-1", nil)
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, conv.ID, types.NewUserMessage(strings.Repeat("a", 40))))
	require.NoError(t, m.AddMessage(ctx, conv.ID, types.NewAssistantMessage("")))

	loaded, err := m.LoadConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 11, loaded.WindowTokens)
}

func TestGetRecentConversations(t *testing.T) {
	m := NewManager(NewMemoryStorage())
	ctx := context.Background()

	first, err := m.CreateConversation(ctx, "caller-1", nil)
	require.NoError(t, err)
	second, err := m.CreateConversation(ctx, "caller-1", nil)
	require.NoError(t, err)

	// Touch the first conversation so it becomes the most recent.
	require.NoError(t, m.AddMessage(ctx, first.ID, types.NewUserMessage("hi again")))

	recent, err := m.GetRecentConversations(ctx, "caller-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, first.ID, recent[0].ID)
	assert.Equal(t, second.ID, recent[1].ID)
}
