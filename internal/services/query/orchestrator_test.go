package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
	"github.com/ternarybob/conspectus/internal/services/retrieval"
)

type fakeProvider struct {
	name        string
	answer      string
	tokens      []string
	generateErr error
	streamErr   error
	failAfter   int

	gotMessages    []interfaces.Message
	gotContext     string
	gotTemperature float64
}

func (f *fakeProvider) Generate(ctx context.Context, messages []interfaces.Message, contextText string, temperature float64) (string, error) {
	f.gotMessages = messages
	f.gotContext = contextText
	f.gotTemperature = temperature
	if f.generateErr != nil {
		return "", f.generateErr
	}
	if f.answer != "" {
		return f.answer, nil
	}
	return strings.Join(f.tokens, ""), nil
}

func (f *fakeProvider) Stream(ctx context.Context, messages []interfaces.Message, contextText string, temperature float64, onToken interfaces.TokenFunc) error {
	f.gotMessages = messages
	f.gotContext = contextText
	f.gotTemperature = temperature
	if f.streamErr != nil {
		for i := 0; i < f.failAfter && i < len(f.tokens); i++ {
			onToken(f.tokens[i])
		}
		return f.streamErr
	}
	for _, token := range f.tokens {
		onToken(token)
	}
	return nil
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "claude"
	}
	return f.name
}

func (f *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

type stubStructured struct {
	contextText string
	err         error
	called      bool
}

func (s *stubStructured) BuildContext(ctx context.Context, question, programID string) (string, error) {
	s.called = true
	return s.contextText, s.err
}

type stubSemantic struct {
	results     []models.SearchResult
	contextText string
	called      bool
	gotLimit    int
	gotProgram  string
}

func (s *stubSemantic) Search(ctx context.Context, query string, limit int, typeFilter string, programID string) []models.SearchResult {
	s.called = true
	s.gotLimit = limit
	s.gotProgram = programID
	return s.results
}

func (s *stubSemantic) ContextForQuery(ctx context.Context, query string, limit int, programID string) string {
	if s.contextText == "" {
		return retrieval.NoResultsMessage
	}
	return s.contextText
}

type stubIndexSvc struct {
	interfaces.IndexService
	ready bool
}

func (s *stubIndexSvc) IsReady() bool { return s.ready }

type stubPrograms struct {
	interfaces.EntityStore
	programs []models.Program
	err      error
}

func (s *stubPrograms) ListPrograms(ctx context.Context) ([]models.Program, error) {
	return s.programs, s.err
}

func orchestratorConfig() *common.Config {
	return &common.Config{
		Database:    common.DatabaseConfig{OrganizationID: "org-test"},
		VectorStore: common.VectorStoreConfig{MatchThreshold: 0.3, DefaultResults: 5},
	}
}

func resultsWithScores(scores ...float64) []models.SearchResult {
	out := make([]models.SearchResult, len(scores))
	for i, score := range scores {
		out[i] = models.SearchResult{
			Content:        "Program: Aurora Hub",
			Metadata:       map[string]interface{}{"type": "program", "program_id": "p1", "program_name": "Aurora Hub"},
			RelevanceScore: score,
		}
	}
	return out
}

func TestProcessQuery_HybridFusesBothContexts(t *testing.T) {
	provider := &fakeProvider{answer: "There is 1 program at risk."}
	structured := &stubStructured{contextText: "\nAt Risk Programs (1):\n- Atlas Mobile (Mobile): slipped"}
	semantic := &stubSemantic{results: resultsWithScores(0.8), contextText: "--- Document 1 (relevance: 0.80) ---\nProgram: Aurora Hub"}
	svc := NewService(orchestratorConfig(), provider, structured, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)

	result, err := svc.ProcessQuery(context.Background(), "How many programs are at risk?", "", nil)
	require.NoError(t, err)

	assert.True(t, structured.called, "hybrid query must run structured retrieval")
	assert.True(t, semantic.called, "hybrid query must run semantic retrieval")
	assert.Equal(t, 5, semantic.gotLimit)
	assert.Equal(t, "There is 1 program at risk.", result.Answer)
	assert.Equal(t, models.ConfidenceHigh, result.Confidence)

	assert.True(t, strings.HasPrefix(provider.gotContext, "=== Semantic Search Results ===\n"), "fused context must lead with the semantic section")
	assert.Contains(t, provider.gotContext, "\n\n=== Structured Data ===\n")
	assert.Contains(t, provider.gotContext, "At Risk Programs (1):")
	assert.InDelta(t, 0.3, provider.gotTemperature, 1e-9)

	require.NotEmpty(t, provider.gotMessages)
	assert.Equal(t, "system", provider.gotMessages[0].Role)
	assert.Equal(t, ClaudeSystemPrompt, provider.gotMessages[0].Content)
}

func TestProcessQuery_SemanticSkipsStructured(t *testing.T) {
	provider := &fakeProvider{answer: "summary"}
	structured := &stubStructured{contextText: "should not appear"}
	semantic := &stubSemantic{results: resultsWithScores(0.6), contextText: "semantic block"}
	svc := NewService(orchestratorConfig(), provider, structured, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)

	_, err := svc.ProcessQuery(context.Background(), "Summarize portfolio health", "", nil)
	require.NoError(t, err)

	assert.False(t, structured.called, "semantic classification with a ready index must not run structured retrieval")
	assert.Equal(t, "semantic block", provider.gotContext)
}

func TestProcessQuery_IndexNotReadyForcesStructured(t *testing.T) {
	provider := &fakeProvider{answer: "fallback answer"}
	structured := &stubStructured{contextText: "structured only"}
	semantic := &stubSemantic{results: resultsWithScores(0.9)}
	svc := NewService(orchestratorConfig(), provider, structured, semantic, &stubIndexSvc{ready: false}, &stubPrograms{}, nil)

	_, err := svc.ProcessQuery(context.Background(), "Summarize portfolio health", "", nil)
	require.NoError(t, err)

	assert.False(t, semantic.called, "semantic retrieval must not run when the index is not ready")
	assert.True(t, structured.called, "not-ready index forces the structured path for every classification")
	assert.Equal(t, "structured only", provider.gotContext)
}

func TestProcessQuery_EmptyContextsSendSentinel(t *testing.T) {
	provider := &fakeProvider{answer: "no data answer"}
	structured := &stubStructured{contextText: ""}
	semantic := &stubSemantic{}
	svc := NewService(orchestratorConfig(), provider, structured, semantic, &stubIndexSvc{ready: false}, &stubPrograms{}, nil)

	result, err := svc.ProcessQuery(context.Background(), "hello", "", nil)
	require.NoError(t, err)

	assert.Equal(t, retrieval.NoResultsMessage, provider.gotContext, "provider must never receive an empty context")
	assert.Equal(t, models.ConfidenceLow, result.Confidence)
	assert.Empty(t, result.Sources)
}

func TestProcessQuery_SentinelCountsAsSemanticContext(t *testing.T) {
	// A ready index with zero hits still yields the sentinel string from
	// ContextForQuery, and fusion treats it as a populated section.
	provider := &fakeProvider{answer: "x"}
	structured := &stubStructured{contextText: "structured section"}
	semantic := &stubSemantic{}
	svc := NewService(orchestratorConfig(), provider, structured, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)

	_, err := svc.ProcessQuery(context.Background(), "How many programs are at risk?", "", nil)
	require.NoError(t, err)

	assert.Contains(t, provider.gotContext, "=== Semantic Search Results ===\n"+retrieval.NoResultsMessage)
	assert.Contains(t, provider.gotContext, "=== Structured Data ===\nstructured section")
}

func TestProcessQuery_GenerationFailureAbsorbed(t *testing.T) {
	provider := &fakeProvider{generateErr: errors.New("backend 500")}
	semantic := &stubSemantic{results: resultsWithScores(0.9), contextText: "semantic block"}
	svc := NewService(orchestratorConfig(), provider, &stubStructured{}, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)

	result, err := svc.ProcessQuery(context.Background(), "Summarize portfolio health", "", nil)
	require.NoError(t, err, "generation failures must not surface as errors")

	assert.Equal(t, apologyMessage, result.Answer)
	assert.Equal(t, models.ConfidenceLow, result.Confidence)
	assert.Len(t, result.Sources, 1, "sources computed before generation are preserved")
}

func TestProcessQuery_StructuredStoreFailurePropagates(t *testing.T) {
	provider := &fakeProvider{answer: "x"}
	structured := &stubStructured{err: errors.New("db down")}
	svc := NewService(orchestratorConfig(), provider, structured, &stubSemantic{}, &stubIndexSvc{ready: false}, &stubPrograms{}, nil)

	_, err := svc.ProcessQuery(context.Background(), "How many programs are at risk?", "", nil)
	assert.Error(t, err)
}

func TestProcessQuery_ProgramScopePassedThrough(t *testing.T) {
	provider := &fakeProvider{answer: "x"}
	semantic := &stubSemantic{results: resultsWithScores(0.6), contextText: "s"}
	svc := NewService(orchestratorConfig(), provider, &stubStructured{}, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)

	_, err := svc.ProcessQuery(context.Background(), "Summarize portfolio health", "p2", nil)
	require.NoError(t, err)
	assert.Equal(t, "p2", semantic.gotProgram)
}

func TestExtractSources(t *testing.T) {
	results := []models.SearchResult{
		{Metadata: map[string]interface{}{"type": "program", "program_id": "p1", "program_name": "Aurora Hub"}},
		{Metadata: map[string]interface{}{"type": "risk", "risk_id": "r1", "program_name": "Atlas Mobile"}},
		{Metadata: map[string]interface{}{"type": "milestone", "milestone_id": "m1", "program_name": "Beacon Video"}},
		{Metadata: map[string]interface{}{"type": "program", "program_id": "p1", "program_name": "Duplicate Title"}},
		{Metadata: map[string]interface{}{"type": "program", "program_name": "No ID"}},
		{Metadata: map[string]interface{}{"program_id": "p7"}},
	}

	sources := extractSources(results)

	require.Len(t, sources, 4)
	assert.Equal(t, models.Source{Type: "program", ID: "p1", Title: "Aurora Hub"}, sources[0], "first-seen title wins for duplicate ids")
	assert.Equal(t, models.Source{Type: "risk", ID: "r1", Title: "Risk: Atlas Mobile"}, sources[1])
	assert.Equal(t, models.Source{Type: "milestone", ID: "m1", Title: "Milestone: Beacon Video"}, sources[2])
	assert.Equal(t, models.Source{Type: "program", ID: "p7", Title: "Unknown Program"}, sources[3], "missing type defaults to program")
}

func TestExtractSources_UnknownType(t *testing.T) {
	results := []models.SearchResult{
		{Metadata: map[string]interface{}{"type": "objective", "program_id": "p3", "program_name": "Canvas Platform"}},
	}
	sources := extractSources(results)
	require.Len(t, sources, 1)
	assert.Equal(t, models.Source{Type: "objective", ID: "p3", Title: "Canvas Platform"}, sources[0])
}

func TestDetermineConfidence(t *testing.T) {
	longStructured := strings.Repeat("x", 150)
	shortStructured := "short"

	tests := []struct {
		name       string
		scores     []float64
		structured string
		want       string
	}{
		{"nothing retrieved", nil, "", "low"},
		{"high average", []float64{0.6, 0.7}, "", "high"},
		{"medium average", []float64{0.6, 0.4, 0.2}, "", "medium"},
		{"boundary 0.5 is medium", []float64{0.5}, "", "medium"},
		{"boundary 0.2 falls through to structured", []float64{0.2}, longStructured, "high"},
		{"low average with short structured", []float64{0.1}, shortStructured, "medium"},
		{"low average with no structured", []float64{0.1}, "", "medium"},
		{"no semantic with long structured", nil, longStructured, "high"},
		{"no semantic with short structured", nil, shortStructured, "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []models.SearchResult
			if tt.scores != nil {
				results = resultsWithScores(tt.scores...)
			}
			if got := determineConfidence(results, tt.structured); got != tt.want {
				t.Errorf("determineConfidence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetermineConfidence_Monotonic(t *testing.T) {
	rank := map[string]int{"low": 0, "medium": 1, "high": 2}
	low := determineConfidence(resultsWithScores(0.1), "")
	high := determineConfidence(resultsWithScores(0.6), "")
	if rank[high] < rank[low] {
		t.Errorf("raising average relevance lowered confidence: %q -> %q", low, high)
	}
}

func collectEvents(t *testing.T, events <-chan models.StreamEvent) (tokens []string, final *models.QueryResult) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return tokens, final
			}
			if ev.IsFinal() {
				if final != nil {
					t.Fatal("received more than one final event")
				}
				final = ev.Result
			} else {
				if final != nil {
					t.Fatal("token event arrived after the final event")
				}
				tokens = append(tokens, ev.Token)
			}
		case <-timeout:
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestProcessQueryStream_TokensThenFinal(t *testing.T) {
	provider := &fakeProvider{tokens: []string{"The ", "portfolio ", "is healthy."}}
	semantic := &stubSemantic{results: resultsWithScores(0.8), contextText: "semantic block"}
	svc := NewService(orchestratorConfig(), provider, &stubStructured{}, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)

	events, err := svc.ProcessQueryStream(context.Background(), "Summarize portfolio health", "", nil)
	require.NoError(t, err)

	tokens, final := collectEvents(t, events)
	assert.Equal(t, []string{"The ", "portfolio ", "is healthy."}, tokens)
	require.NotNil(t, final, "stream must end with a final event")
	assert.Equal(t, "The portfolio is healthy.", final.Answer)
	assert.Equal(t, models.ConfidenceHigh, final.Confidence)
	assert.Len(t, final.Sources, 1)
}

func TestProcessQueryStream_MatchesSyncAnswer(t *testing.T) {
	makeService := func() (*Service, *fakeProvider) {
		provider := &fakeProvider{tokens: []string{"Two ", "programs ", "at risk."}}
		semantic := &stubSemantic{results: resultsWithScores(0.8), contextText: "semantic block"}
		svc := NewService(orchestratorConfig(), provider, &stubStructured{}, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)
		return svc, provider
	}

	syncSvc, _ := makeService()
	syncResult, err := syncSvc.ProcessQuery(context.Background(), "Summarize portfolio health", "", nil)
	require.NoError(t, err)

	streamSvc, _ := makeService()
	events, err := streamSvc.ProcessQueryStream(context.Background(), "Summarize portfolio health", "", nil)
	require.NoError(t, err)
	_, final := collectEvents(t, events)

	require.NotNil(t, final)
	assert.Equal(t, syncResult.Answer, final.Answer)
	assert.Equal(t, syncResult.Confidence, final.Confidence)
}

func TestProcessQueryStream_MidStreamFailure(t *testing.T) {
	provider := &fakeProvider{tokens: []string{"partial ", "output "}, streamErr: errors.New("connection reset"), failAfter: 2}
	semantic := &stubSemantic{results: resultsWithScores(0.8), contextText: "semantic block"}
	svc := NewService(orchestratorConfig(), provider, &stubStructured{}, semantic, &stubIndexSvc{ready: true}, &stubPrograms{}, nil)

	events, err := svc.ProcessQueryStream(context.Background(), "Summarize portfolio health", "", nil)
	require.NoError(t, err)

	tokens, final := collectEvents(t, events)
	assert.Equal(t, []string{"partial ", "output ", apologyMessage}, tokens, "apology is emitted as the last token")
	require.NotNil(t, final)
	assert.Equal(t, apologyMessage, final.Answer, "partial output is replaced, not kept")
	assert.Equal(t, models.ConfidenceLow, final.Confidence)
}

func TestGenerateProactiveInsight(t *testing.T) {
	programs := []models.Program{
		{Name: "A", Status: "On Track"},
		{Name: "B", Status: "At Risk"},
		{Name: "C", Status: "On Track"},
	}

	t.Run("with ready index", func(t *testing.T) {
		provider := &fakeProvider{answer: "Watch Atlas Mobile this week."}
		semantic := &stubSemantic{contextText: "SEMANTIC SURVEY"}
		svc := NewService(orchestratorConfig(), provider, &stubStructured{}, semantic, &stubIndexSvc{ready: true}, &stubPrograms{programs: programs}, nil)

		result, err := svc.GenerateProactiveInsight(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "Watch Atlas Mobile this week.", result.Answer)
		assert.Equal(t, models.ConfidenceHigh, result.Confidence)
		assert.Empty(t, result.Sources)
		assert.InDelta(t, 0.5, provider.gotTemperature, 1e-9)

		wantContext := "SEMANTIC SURVEY\nPortfolio Summary: 3 total programs\n- On Track: 2\n- At Risk: 1\n"
		assert.Equal(t, wantContext, provider.gotContext)

		require.Len(t, provider.gotMessages, 2)
		assert.Equal(t, "system", provider.gotMessages[0].Role)
		assert.Equal(t, ProactiveInsightPrompt, provider.gotMessages[1].Content)
	})

	t.Run("index not ready uses structured only", func(t *testing.T) {
		provider := &fakeProvider{answer: "insight"}
		semantic := &stubSemantic{contextText: "SHOULD NOT APPEAR"}
		svc := NewService(orchestratorConfig(), provider, &stubStructured{}, semantic, &stubIndexSvc{ready: false}, &stubPrograms{programs: programs}, nil)

		_, err := svc.GenerateProactiveInsight(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "\nPortfolio Summary: 3 total programs\n- On Track: 2\n- At Risk: 1\n", provider.gotContext)
	})

	t.Run("generation failure returns fallback", func(t *testing.T) {
		provider := &fakeProvider{generateErr: errors.New("overloaded")}
		svc := NewService(orchestratorConfig(), provider, &stubStructured{}, &stubSemantic{}, &stubIndexSvc{ready: false}, &stubPrograms{programs: programs}, nil)

		result, err := svc.GenerateProactiveInsight(context.Background())
		require.NoError(t, err)
		assert.Equal(t, insightFallback, result.Answer)
		assert.Equal(t, models.ConfidenceLow, result.Confidence)
	})

	t.Run("entity store failure propagates", func(t *testing.T) {
		provider := &fakeProvider{answer: "x"}
		svc := NewService(orchestratorConfig(), provider, &stubStructured{}, &stubSemantic{}, &stubIndexSvc{ready: false}, &stubPrograms{err: errors.New("db down")}, nil)

		_, err := svc.GenerateProactiveInsight(context.Background())
		assert.Error(t, err)
	})
}

func TestBuildBriefingContext(t *testing.T) {
	now := time.Date(2026, time.August, 25, 9, 0, 0, 0, time.UTC)
	programs := []models.Program{
		{Name: "A", Status: "On Track", LaunchDate: "2026-08-28", LastUpdate: "u1"},
		{Name: "B", Status: "At Risk", LaunchDate: "2026-09-20", LastUpdate: "slip",
			Risks: []models.Risk{
				{Title: "R1", Severity: "High", Status: "Open"},
				{Title: "R2", Severity: "High", Status: "Mitigated"},
				{Title: "R3", Severity: "Medium", Status: "Open"},
			}},
		{Name: "C", Status: "Off Track", LastUpdate: "blocked"},
		{Name: "D", Status: "On Track"},
	}

	got := buildBriefingContext(programs, now)

	want := `Status Breakdown:
- On Track: 2 programs
- At Risk: 1 programs
- Off Track: 1 programs

Programs Needing Attention:
- B (At Risk): slip
- C (Off Track): blocked

Launching This Week:
- A: 2026-08-28

Critical Risks:
- B: R1`

	if got != want {
		t.Errorf("briefing context mismatch\ngot:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildBriefingContext_WindowBoundaries(t *testing.T) {
	now := time.Date(2026, time.August, 25, 23, 0, 0, 0, time.UTC)
	programs := []models.Program{
		{Name: "Today", Status: "On Track", LaunchDate: "2026-08-25"},
		{Name: "DaySix", Status: "On Track", LaunchDate: "2026-08-31"},
		{Name: "DaySeven", Status: "On Track", LaunchDate: "2026-09-01"},
		{Name: "Yesterday", Status: "On Track", LaunchDate: "2026-08-24"},
	}

	got := buildBriefingContext(programs, now)

	if !strings.Contains(got, "- Today: 2026-08-25") {
		t.Errorf("launch on the current day must be included, got:\n%s", got)
	}
	if !strings.Contains(got, "- DaySix: 2026-08-31") {
		t.Errorf("launch six days out must be included, got:\n%s", got)
	}
	if strings.Contains(got, "DaySeven") {
		t.Errorf("launch seven days out must be excluded, got:\n%s", got)
	}
	if strings.Contains(got, "Yesterday") {
		t.Errorf("past launch must be excluded, got:\n%s", got)
	}
}

func TestGeneratePortfolioSummary(t *testing.T) {
	programs := []models.Program{
		{Name: "A", Status: "On Track", LaunchDate: "2026-08-28", LastUpdate: "u1"},
		{Name: "B", Status: "At Risk", LastUpdate: "slip",
			Risks: []models.Risk{{Title: "R1", Severity: "High", Status: "Open"}}},
	}

	t.Run("success", func(t *testing.T) {
		provider := &fakeProvider{answer: "briefing text"}
		svc := NewService(orchestratorConfig(), provider, &stubStructured{}, &stubSemantic{}, &stubIndexSvc{ready: true}, &stubPrograms{programs: programs}, nil)
		svc.now = func() time.Time { return time.Date(2026, time.August, 25, 9, 0, 0, 0, time.UTC) }

		result, err := svc.GeneratePortfolioSummary(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "briefing text", result.Answer)
		assert.Equal(t, models.ConfidenceHigh, result.Confidence)
		assert.InDelta(t, 0.5, provider.gotTemperature, 1e-9)
		assert.Contains(t, provider.gotContext, "Status Breakdown:")
		assert.Contains(t, provider.gotContext, "Launching This Week:\n- A: 2026-08-28")
		assert.Contains(t, provider.gotContext, "Critical Risks:\n- B: R1")
		require.Len(t, provider.gotMessages, 2)
		assert.Equal(t, SummaryPrompt, provider.gotMessages[1].Content)
	})

	t.Run("generation failure returns fallback", func(t *testing.T) {
		provider := &fakeProvider{generateErr: errors.New("overloaded")}
		svc := NewService(orchestratorConfig(), provider, &stubStructured{}, &stubSemantic{}, &stubIndexSvc{ready: true}, &stubPrograms{programs: programs}, nil)

		result, err := svc.GeneratePortfolioSummary(context.Background())
		require.NoError(t, err)
		assert.Equal(t, summaryFallback, result.Answer)
		assert.Equal(t, models.ConfidenceLow, result.Confidence)
	})
}

func TestStatusCounts_FirstSeenOrder(t *testing.T) {
	programs := []models.Program{
		{Status: "On Track"},
		{Status: "At Risk"},
		{Status: "On Track"},
		{Status: "Completed"},
	}

	counts := statusCounts(programs)

	want := []statusCount{
		{status: "On Track", count: 2},
		{status: "At Risk", count: 1},
		{status: "Completed", count: 1},
	}
	require.Len(t, counts, len(want))
	for i := range want {
		assert.Equal(t, want[i], counts[i])
	}
}
