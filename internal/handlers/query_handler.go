package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// queryRequest is the body accepted by the query endpoints. An explicit
// history wins over the stored session; otherwise session_id restores the
// conversation from the local session store.
type queryRequest struct {
	Message   string        `json:"message" validate:"required"`
	History   []chatMessage `json:"history" validate:"dive"`
	Context   *queryContext `json:"context"`
	SessionID string        `json:"session_id"`
}

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type queryContext struct {
	ProgramID string `json:"program_id"`
}

func (q queryRequest) programID() string {
	if q.Context == nil {
		return ""
	}
	return q.Context.ProgramID
}

// Wire frames shared by the SSE and WebSocket streams.
type tokenEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type doneEvent struct {
	Type     string             `json:"type"`
	Response models.QueryResult `json:"response"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// QueryHandler handles HTTP requests for portfolio queries, streaming chat,
// and generated insights
type QueryHandler struct {
	query    interfaces.QueryService
	sessions interfaces.SessionStore
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(query interfaces.QueryService, sessions interfaces.SessionStore, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		query:    query,
		sessions: sessions,
		validate: validator.New(),
		logger:   logger,
	}
}

// QueryHandler handles POST /api/query
func (h *QueryHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid query request: %v", err))
		return
	}

	result, err := h.query.ProcessQuery(r.Context(), req.Message, req.programID(), h.conversationHistory(req))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to process query")
		WriteError(w, http.StatusInternalServerError, "Failed to process query")
		return
	}

	h.recordTurns(req, result)
	WriteJSON(w, http.StatusOK, result)
}

// StreamQueryHandler handles POST /api/query/stream
// The response is an SSE stream of token events followed by a single done
// event carrying the complete answer with sources.
func (h *QueryHandler) StreamQueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid query request: %v", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	events, err := h.query.ProcessQueryStream(r.Context(), req.Message, req.programID(), h.conversationHistory(req))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to process query")
		WriteError(w, http.StatusInternalServerError, "Failed to process query")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Flush headers immediately to trigger the client's onopen
	flusher.Flush()

	for event := range events {
		var payload []byte
		if event.IsFinal() {
			payload, _ = json.Marshal(doneEvent{Type: "done", Response: *event.Result})
			h.recordTurns(req, *event.Result)
		} else {
			payload, _ = json.Marshal(tokenEvent{Type: "token", Content: event.Token})
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// WebSocketQueryHandler handles GET /api/query/ws
// Each text message carries one query request; the reply is a stream of
// token messages followed by a done message, mirroring the SSE framing.
// The connection stays open for further queries.
func (h *QueryHandler) WebSocketQueryHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var req queryRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := conn.WriteJSON(errorEvent{Type: "error", Error: "Invalid query request"}); err != nil {
				return
			}
			continue
		}
		if err := h.validate.Struct(req); err != nil {
			if err := conn.WriteJSON(errorEvent{Type: "error", Error: fmt.Sprintf("Invalid query request: %v", err)}); err != nil {
				return
			}
			continue
		}

		if err := h.streamToConn(r.Context(), conn, req); err != nil {
			h.logger.Warn().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

// streamToConn runs one query and writes its event stream to the connection.
// A failed write drains the channel so the producing goroutine can finish.
func (h *QueryHandler) streamToConn(ctx context.Context, conn *websocket.Conn, req queryRequest) error {
	events, err := h.query.ProcessQueryStream(ctx, req.Message, req.programID(), h.conversationHistory(req))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to process query")
		return conn.WriteJSON(errorEvent{Type: "error", Error: "Failed to process query"})
	}

	for event := range events {
		var payload interface{}
		if event.IsFinal() {
			payload = doneEvent{Type: "done", Response: *event.Result}
			h.recordTurns(req, *event.Result)
		} else {
			payload = tokenEvent{Type: "token", Content: event.Token}
		}
		if err := conn.WriteJSON(payload); err != nil {
			for range events {
			}
			return err
		}
	}
	return nil
}

// ProactiveInsightHandler handles GET /api/insights/proactive
func (h *QueryHandler) ProactiveInsightHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	result, err := h.query.GenerateProactiveInsight(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate insight")
		WriteError(w, http.StatusInternalServerError, "Failed to generate insight")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"insight":      result.Answer,
		"sources":      result.Sources,
		"confidence":   result.Confidence,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// SummaryHandler handles GET /api/summary
func (h *QueryHandler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	result, err := h.query.GeneratePortfolioSummary(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate summary")
		WriteError(w, http.StatusInternalServerError, "Failed to generate summary")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summary":      result.Answer,
		"sources":      result.Sources,
		"confidence":   result.Confidence,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// conversationHistory resolves the effective history for a request: an
// explicit history in the body wins, otherwise the stored session turns.
func (h *QueryHandler) conversationHistory(req queryRequest) []interfaces.Message {
	if len(req.History) > 0 {
		msgs := make([]interfaces.Message, 0, len(req.History))
		for _, m := range req.History {
			msgs = append(msgs, interfaces.Message{Role: m.Role, Content: m.Content})
		}
		return msgs
	}

	if req.SessionID == "" || h.sessions == nil {
		return nil
	}
	session, err := h.sessions.GetSession(req.SessionID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			h.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Failed to load chat session")
		}
		return nil
	}

	msgs := make([]interfaces.Message, 0, len(session.Turns))
	for _, t := range session.Turns {
		msgs = append(msgs, interfaces.Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}

// recordTurns appends the question and answer to the request's session.
// Session persistence is best-effort; failures are logged, never surfaced.
func (h *QueryHandler) recordTurns(req queryRequest, result models.QueryResult) {
	if req.SessionID == "" || h.sessions == nil {
		return
	}

	session, err := h.sessions.GetSession(req.SessionID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			h.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Failed to load chat session")
			return
		}
		session = &models.ChatSession{ID: req.SessionID}
	}
	if pid := req.programID(); pid != "" {
		session.ProgramID = pid
	}

	now := time.Now().UTC()
	session.Turns = append(session.Turns,
		models.ChatTurn{Role: "user", Content: req.Message, At: now},
		models.ChatTurn{Role: "assistant", Content: result.Answer, At: now},
	)

	if err := h.sessions.SaveSession(session); err != nil {
		h.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Failed to save chat session")
	}
}
