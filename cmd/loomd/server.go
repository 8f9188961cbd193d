package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/loomlabs/loom/pkg/conversation"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/orchestrator"
	"github.com/loomlabs/loom/pkg/wire"
)

// server exposes the HTTP API: conversation management plus the streaming
// turn endpoint.
type server struct {
	orch    *orchestrator.Orchestrator
	manager *conversation.Manager
	logger  *logging.Logger
}

func newServer(orch *orchestrator.Orchestrator, manager *conversation.Manager, logger *logging.Logger) *server {
	return &server{orch: orch, manager: manager, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /v1/conversations", s.handleListConversations)
	mux.HandleFunc("POST /v1/conversations/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type createConversationRequest struct {
	CallerID string `json:"caller_id"`
}

func (s *server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}
	if req.CallerID == "" {
		writeError(w, http.StatusBadRequest, "caller_id is required")
		return
	}

	conv, err := s.manager.CreateConversation(r.Context(), req.CallerID, nil)
	if err != nil {
		s.logger.Errorf("failed to create conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	callerID := r.URL.Query().Get("caller_id")
	if callerID == "" {
		writeError(w, http.StatusBadRequest, "caller_id query parameter is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	convs, err := s.manager.GetRecentConversations(r.Context(), callerID, limit)
	if err != nil {
		s.logger.Errorf("failed to list conversations for %s: %v", callerID, err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

type turnRequest struct {
	Message string `json:"message"`
}

// handleTurn runs one full turn, streaming wire events as JSON Lines until
// the run's terminal event. Client disconnects cancel the run through the
// request context.
func (s *server) handleTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if _, err := s.manager.LoadConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Errorf("failed to load conversation %s: %v", conversationID, err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	emitter := wire.NewEmitter(w)
	if err := s.orch.Run(r.Context(), emitter, conversationID, req.Message); err != nil {
		// The terminal error event already reached the caller.
		s.logger.Errorf("turn failed for conversation %s: %v", conversationID, err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
