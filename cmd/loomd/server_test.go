package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/pkg/conversation"
	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/orchestrator"
	"github.com/loomlabs/loom/pkg/strategy"
	"github.com/loomlabs/loom/pkg/tools"
	"github.com/loomlabs/loom/pkg/types"
	"github.com/loomlabs/loom/pkg/wire"
)

// answerStrategy always finishes in one iteration with a fixed answer.
type answerStrategy struct{ answer string }

func (s *answerStrategy) Name() string { return "answer" }

func (s *answerStrategy) ExecuteIteration(_ context.Context, _ []*types.Message, _ []llm.ToolDefinition, _ *types.IterationContext, emit strategy.EmitFunc) error {
	emit(types.NewContentChunkEvent(s.answer))
	emit(types.NewFinalResponseEvent(s.answer))
	emit(types.NewIterationCompleteEvent(false, nil))
	return nil
}

// stubProvider satisfies the finalizer slot; the answer strategy never
// reaches it.
type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Capabilities() llm.Capabilities { return llm.Capabilities{} }

func (stubProvider) Complete(context.Context, []*types.Message, []llm.ToolDefinition, llm.RequestConfig) (*llm.Response, error) {
	return &llm.Response{}, nil
}
func (stubProvider) StreamCompletion(context.Context, []*types.Message, []llm.ToolDefinition, llm.RequestConfig) (<-chan *llm.StreamChunk, error) {
	ch := make(chan *llm.StreamChunk)
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) (*server, *conversation.Manager) {
	t.Helper()
	manager := conversation.NewManager(conversation.NewMemoryStorage())
	orch := orchestrator.New(&answerStrategy{answer: "hello from loom"}, stubProvider{}, tools.NewRegistry(), manager)
	return newServer(orch, manager, logging.Default()), manager
}

func TestCreateAndListConversations(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/conversations",
		strings.NewReader(`{"caller_id":"caller-1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var conv types.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "caller-1", conv.CallerID)
	assert.NotEmpty(t, conv.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations?caller_id=caller-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var convs []types.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, conv.ID, convs[0].ID)
}

func TestCreateConversationRequiresCallerID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/conversations",
		strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnStreamsEventsUntilTerminal(t *testing.T) {
	srv, manager := newTestServer(t)
	conv, err := manager.CreateConversation(context.Background(), "caller-1", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/v1/conversations/"+conv.ID+"/turns",
		strings.NewReader(`{"message":"say hello"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	require.NotEmpty(t, lines)

	var last wire.Event
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, wire.EventTypeCompleted, last.Type)
	assert.Equal(t, "hello from loom", last.Content)

	terminals := 0
	for _, line := range lines {
		var event wire.Event
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		if event.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestTurnUnknownConversationReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/v1/conversations/missing/turns",
		strings.NewReader(`{"message":"hi"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTurnRequiresMessage(t *testing.T) {
	srv, manager := newTestServer(t)
	conv, err := manager.CreateConversation(context.Background(), "caller-1", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/v1/conversations/"+conv.ID+"/turns",
		strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
