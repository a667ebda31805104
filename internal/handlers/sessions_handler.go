package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// SessionsHandler handles HTTP requests for stored chat sessions
type SessionsHandler struct {
	sessions interfaces.SessionStore
	logger   arbor.ILogger
}

// NewSessionsHandler creates a new SessionsHandler
func NewSessionsHandler(sessions interfaces.SessionStore, logger arbor.ILogger) *SessionsHandler {
	return &SessionsHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// ListSessionsHandler handles GET /api/sessions
// An optional limit query parameter caps the result (default 20).
func (h *SessionsHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := h.sessions.ListSessions(limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list chat sessions")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}

	if sessions == nil {
		sessions = []models.ChatSession{}
	}

	WriteJSON(w, http.StatusOK, sessions)
}

// GetSessionHandler handles GET /api/sessions/{id}
func (h *SessionsHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/sessions/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	session, err := h.sessions.GetSession(id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get chat session")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch session")
		return
	}

	WriteJSON(w, http.StatusOK, session)
}

// DeleteSessionHandler handles DELETE /api/sessions/{id}
func (h *SessionsHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/sessions/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	if err := h.sessions.DeleteSession(id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete chat session")
		WriteError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
