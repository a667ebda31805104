package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// mockQueryService implements interfaces.QueryService for testing
type mockQueryService struct {
	processFunc func(ctx context.Context, question, programID string, history []interfaces.Message) (models.QueryResult, error)
	streamFunc  func(ctx context.Context, question, programID string, history []interfaces.Message) (<-chan models.StreamEvent, error)
	insightFunc func(ctx context.Context) (models.QueryResult, error)
	summaryFunc func(ctx context.Context) (models.QueryResult, error)
}

func (m *mockQueryService) ProcessQuery(ctx context.Context, question, programID string, history []interfaces.Message) (models.QueryResult, error) {
	if m.processFunc != nil {
		return m.processFunc(ctx, question, programID, history)
	}
	return models.QueryResult{}, nil
}

func (m *mockQueryService) ProcessQueryStream(ctx context.Context, question, programID string, history []interfaces.Message) (<-chan models.StreamEvent, error) {
	if m.streamFunc != nil {
		return m.streamFunc(ctx, question, programID, history)
	}
	return streamOf(nil, models.QueryResult{}), nil
}

func (m *mockQueryService) GenerateProactiveInsight(ctx context.Context) (models.QueryResult, error) {
	if m.insightFunc != nil {
		return m.insightFunc(ctx)
	}
	return models.QueryResult{}, nil
}

func (m *mockQueryService) GeneratePortfolioSummary(ctx context.Context) (models.QueryResult, error) {
	if m.summaryFunc != nil {
		return m.summaryFunc(ctx)
	}
	return models.QueryResult{}, nil
}

// streamOf builds a closed event channel: one event per token, then the
// terminal result event.
func streamOf(tokens []string, result models.QueryResult) <-chan models.StreamEvent {
	ch := make(chan models.StreamEvent, len(tokens)+1)
	for _, tok := range tokens {
		ch <- models.StreamEvent{Token: tok}
	}
	ch <- models.StreamEvent{Result: &result}
	close(ch)
	return ch
}

// mockSessionStore is a map-backed SessionStore
type mockSessionStore struct {
	sessions map[string]models.ChatSession
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]models.ChatSession)}
}

func (m *mockSessionStore) SaveSession(s *models.ChatSession) error {
	m.sessions[s.ID] = *s
	return nil
}

func (m *mockSessionStore) GetSession(id string) (*models.ChatSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &s, nil
}

func (m *mockSessionStore) ListSessions(limit int) ([]models.ChatSession, error) {
	sessions := make([]models.ChatSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (m *mockSessionStore) DeleteSession(id string) error {
	if _, ok := m.sessions[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func TestQueryHandler_Success(t *testing.T) {
	var capturedQuestion, capturedProgram string
	service := &mockQueryService{
		processFunc: func(ctx context.Context, question, programID string, history []interfaces.Message) (models.QueryResult, error) {
			capturedQuestion = question
			capturedProgram = programID
			return models.QueryResult{
				Answer:     "Two programs are at risk.",
				Sources:    []models.Source{{Type: "program", ID: "prog-1", Title: "Aurora Smart Hub"}},
				Confidence: models.ConfidenceHigh,
			}, nil
		},
	}
	handler := NewQueryHandler(service, nil, arbor.NewLogger())

	body := `{"message": "Which programs are at risk?", "context": {"program_id": "prog-1"}}`
	req := httptest.NewRequest("POST", "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.QueryHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if capturedQuestion != "Which programs are at risk?" {
		t.Errorf("Unexpected question: %q", capturedQuestion)
	}
	if capturedProgram != "prog-1" {
		t.Errorf("Unexpected program scope: %q", capturedProgram)
	}

	var result models.QueryResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Answer != "Two programs are at risk." {
		t.Errorf("Unexpected answer: %q", result.Answer)
	}
	if len(result.Sources) != 1 || result.Sources[0].ID != "prog-1" {
		t.Errorf("Unexpected sources: %+v", result.Sources)
	}
	if result.Confidence != models.ConfidenceHigh {
		t.Errorf("Unexpected confidence: %q", result.Confidence)
	}
}

func TestQueryHandler_RequiresMessage(t *testing.T) {
	handler := NewQueryHandler(&mockQueryService{}, nil, arbor.NewLogger())

	req := httptest.NewRequest("POST", "/api/query", strings.NewReader(`{"history": []}`))
	rec := httptest.NewRecorder()
	handler.QueryHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestQueryHandler_RejectsUnknownRole(t *testing.T) {
	handler := NewQueryHandler(&mockQueryService{}, nil, arbor.NewLogger())

	body := `{"message": "hi", "history": [{"role": "tool", "content": "x"}]}`
	req := httptest.NewRequest("POST", "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.QueryHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestQueryHandler_SessionRoundTrip(t *testing.T) {
	var capturedHistory []interfaces.Message
	service := &mockQueryService{
		processFunc: func(ctx context.Context, question, programID string, history []interfaces.Message) (models.QueryResult, error) {
			capturedHistory = history
			return models.QueryResult{Answer: "Answer to: " + question, Confidence: models.ConfidenceMedium}, nil
		},
	}
	sessions := newMockSessionStore()
	handler := NewQueryHandler(service, sessions, arbor.NewLogger())

	first := `{"message": "Which programs are at risk?", "session_id": "sess-1", "context": {"program_id": "prog-1"}}`
	req := httptest.NewRequest("POST", "/api/query", strings.NewReader(first))
	rec := httptest.NewRecorder()
	handler.QueryHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if len(capturedHistory) != 0 {
		t.Errorf("Expected no history on first turn, got %d messages", len(capturedHistory))
	}

	stored := sessions.sessions["sess-1"]
	if len(stored.Turns) != 2 {
		t.Fatalf("Expected 2 stored turns, got %d", len(stored.Turns))
	}
	if stored.Turns[0].Role != "user" || stored.Turns[1].Role != "assistant" {
		t.Errorf("Unexpected turn roles: %s, %s", stored.Turns[0].Role, stored.Turns[1].Role)
	}
	if stored.ProgramID != "prog-1" {
		t.Errorf("Expected program scope on session, got %q", stored.ProgramID)
	}

	second := `{"message": "What about milestones?", "session_id": "sess-1"}`
	req = httptest.NewRequest("POST", "/api/query", strings.NewReader(second))
	rec = httptest.NewRecorder()
	handler.QueryHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	if len(capturedHistory) != 2 {
		t.Fatalf("Expected stored history on second turn, got %d messages", len(capturedHistory))
	}
	if capturedHistory[0].Content != "Which programs are at risk?" {
		t.Errorf("Unexpected first history message: %q", capturedHistory[0].Content)
	}
	if capturedHistory[1].Role != "assistant" {
		t.Errorf("Unexpected second history role: %q", capturedHistory[1].Role)
	}

	if len(sessions.sessions["sess-1"].Turns) != 4 {
		t.Errorf("Expected 4 stored turns after second exchange, got %d", len(sessions.sessions["sess-1"].Turns))
	}
}

func TestQueryHandler_ExplicitHistoryWins(t *testing.T) {
	var capturedHistory []interfaces.Message
	service := &mockQueryService{
		processFunc: func(ctx context.Context, question, programID string, history []interfaces.Message) (models.QueryResult, error) {
			capturedHistory = history
			return models.QueryResult{Answer: "ok"}, nil
		},
	}
	sessions := newMockSessionStore()
	sessions.sessions["sess-1"] = models.ChatSession{
		ID:    "sess-1",
		Turns: []models.ChatTurn{{Role: "user", Content: "stored turn"}},
	}
	handler := NewQueryHandler(service, sessions, arbor.NewLogger())

	body := `{"message": "next", "session_id": "sess-1", "history": [{"role": "user", "content": "explicit turn"}]}`
	req := httptest.NewRequest("POST", "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.QueryHandler(rec, req)

	if len(capturedHistory) != 1 || capturedHistory[0].Content != "explicit turn" {
		t.Errorf("Expected explicit history to win, got %+v", capturedHistory)
	}
}

func TestStreamQueryHandler_Framing(t *testing.T) {
	result := models.QueryResult{
		Answer:     "Two programs",
		Sources:    []models.Source{{Type: "program", ID: "prog-1", Title: "Aurora Smart Hub"}},
		Confidence: models.ConfidenceHigh,
	}
	service := &mockQueryService{
		streamFunc: func(ctx context.Context, question, programID string, history []interfaces.Message) (<-chan models.StreamEvent, error) {
			return streamOf([]string{"Two ", "programs"}, result), nil
		},
	}
	handler := NewQueryHandler(service, nil, arbor.NewLogger())

	req := httptest.NewRequest("POST", "/api/query/stream", strings.NewReader(`{"message": "How many programs?"}`))
	rec := httptest.NewRecorder()
	handler.StreamQueryHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}
	if !rec.Flushed {
		t.Error("Expected response to be flushed")
	}

	want := `data: {"type":"token","content":"Two "}` + "\n\n" +
		`data: {"type":"token","content":"programs"}` + "\n\n" +
		`data: {"type":"done","response":{"answer":"Two programs","sources":[{"type":"program","id":"prog-1","title":"Aurora Smart Hub"}],"confidence":"high"}}` + "\n\n"
	if rec.Body.String() != want {
		t.Errorf("Unexpected SSE body:\n got: %q\nwant: %q", rec.Body.String(), want)
	}
}

func TestStreamQueryHandler_MethodNotAllowed(t *testing.T) {
	handler := NewQueryHandler(&mockQueryService{}, nil, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/query/stream", nil)
	rec := httptest.NewRecorder()
	handler.StreamQueryHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestWebSocketQueryHandler(t *testing.T) {
	result := models.QueryResult{
		Answer:     "All on track.",
		Sources:    []models.Source{},
		Confidence: models.ConfidenceMedium,
	}
	service := &mockQueryService{
		streamFunc: func(ctx context.Context, question, programID string, history []interfaces.Message) (<-chan models.StreamEvent, error) {
			return streamOf([]string{"All ", "on ", "track."}, result), nil
		},
	}
	handler := NewQueryHandler(service, nil, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.WebSocketQueryHandler))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]string{"message": "Portfolio status?"}); err != nil {
		t.Fatalf("Failed to send query: %v", err)
	}

	var tokens []string
	var done bool
	for !done {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed to read message: %v", err)
		}
		switch msg["type"] {
		case "token":
			tokens = append(tokens, msg["content"].(string))
		case "done":
			response := msg["response"].(map[string]interface{})
			if response["answer"] != "All on track." {
				t.Errorf("Unexpected answer: %v", response["answer"])
			}
			if response["confidence"] != "medium" {
				t.Errorf("Unexpected confidence: %v", response["confidence"])
			}
			done = true
		default:
			t.Fatalf("Unexpected message type: %v", msg["type"])
		}
	}

	if joined := strings.Join(tokens, ""); joined != "All on track." {
		t.Errorf("Tokens do not reassemble the answer: %q", joined)
	}

	// Invalid request keeps the connection open and reports an error event
	if err := conn.WriteJSON(map[string]string{"note": "no message field"}); err != nil {
		t.Fatalf("Failed to send invalid query: %v", err)
	}
	var errMsg map[string]interface{}
	if err := conn.ReadJSON(&errMsg); err != nil {
		t.Fatalf("Failed to read error message: %v", err)
	}
	if errMsg["type"] != "error" {
		t.Errorf("Expected error event, got %v", errMsg["type"])
	}
}

func TestProactiveInsightHandler(t *testing.T) {
	service := &mockQueryService{
		insightFunc: func(ctx context.Context) (models.QueryResult, error) {
			return models.QueryResult{Answer: "Helios slipped again.", Confidence: models.ConfidenceMedium}, nil
		},
	}
	handler := NewQueryHandler(service, nil, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/insights/proactive", nil)
	rec := httptest.NewRecorder()
	handler.ProactiveInsightHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["insight"] != "Helios slipped again." {
		t.Errorf("Unexpected insight: %v", body["insight"])
	}
	if body["generated_at"] == nil {
		t.Error("Expected generated_at timestamp")
	}
}

func TestSummaryHandler(t *testing.T) {
	service := &mockQueryService{
		summaryFunc: func(ctx context.Context) (models.QueryResult, error) {
			return models.QueryResult{Answer: "18 programs tracked.", Confidence: models.ConfidenceHigh}, nil
		},
	}
	handler := NewQueryHandler(service, nil, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/summary", nil)
	rec := httptest.NewRecorder()
	handler.SummaryHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["summary"] != "18 programs tracked." {
		t.Errorf("Unexpected summary: %v", body["summary"])
	}
	if body["confidence"] != "high" {
		t.Errorf("Unexpected confidence: %v", body["confidence"])
	}
}
