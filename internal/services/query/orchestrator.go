package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
	"github.com/ternarybob/conspectus/internal/services/retrieval"
)

const (
	// Generation temperatures: grounded question answering runs cold,
	// insight and briefing generation get some room to phrase.
	qaTemperature      = 0.3
	insightTemperature = 0.5

	apologyMessage  = "I encountered an error while processing your question. Please try again."
	insightFallback = "Unable to generate insight at this time."
	summaryFallback = "Unable to generate summary at this time."

	// Broad survey query feeding the proactive insight context.
	insightSurveyQuery   = "portfolio health risks launches status overview"
	insightSurveyResults = 10
)

// Service implements QueryService. One instance serves all requests; each
// query runs the classify, retrieve, fuse, generate pipeline with no state
// shared between requests beyond the index readiness flag.
type Service struct {
	maxResults int
	provider   interfaces.LLMProvider
	structured interfaces.StructuredRetriever
	semantic   interfaces.SemanticRetriever
	index      interfaces.IndexService
	entities   interfaces.EntityStore
	logger     arbor.ILogger
	now        func() time.Time
}

// NewService creates a new query orchestration service.
func NewService(cfg *common.Config, provider interfaces.LLMProvider, structured interfaces.StructuredRetriever, semantic interfaces.SemanticRetriever, index interfaces.IndexService, entities interfaces.EntityStore, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	maxResults := cfg.VectorStore.DefaultResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Service{
		maxResults: maxResults,
		provider:   provider,
		structured: structured,
		semantic:   semantic,
		index:      index,
		entities:   entities,
		logger:     logger,
		now:        time.Now,
	}
}

// retrieved carries everything the generation step needs from retrieval.
type retrieved struct {
	queryType         string
	combinedContext   string
	searchResults     []models.SearchResult
	structuredContext string
}

// retrieve classifies the question and gathers context. Semantic retrieval
// runs only when the index is ready; when it is not, every query falls back
// to the structured path regardless of classification.
func (s *Service) retrieve(ctx context.Context, question, programID string) (retrieved, error) {
	queryType := DetectQueryType(question)
	s.logger.Info().Str("query_type", queryType).Msg("Query classified")

	wantsSemantic := queryType == models.QueryTypeSemantic || queryType == models.QueryTypeHybrid
	ready := s.index.IsReady()

	var semanticContext, structuredContext string
	var searchResults []models.SearchResult

	if wantsSemantic && ready {
		searchResults = s.semantic.Search(ctx, question, s.maxResults, "", programID)
		semanticContext = s.semantic.ContextForQuery(ctx, question, s.maxResults, programID)
	} else if wantsSemantic {
		s.logger.Warn().Msg("Semantic index not ready, falling back to structured retrieval only")
	}

	if queryType == models.QueryTypeStructured || queryType == models.QueryTypeHybrid || !ready {
		sc, err := s.structured.BuildContext(ctx, question, programID)
		if err != nil {
			return retrieved{}, err
		}
		structuredContext = sc
	}

	return retrieved{
		queryType:         queryType,
		combinedContext:   fuseContexts(semanticContext, structuredContext),
		searchResults:     searchResults,
		structuredContext: structuredContext,
	}, nil
}

// fuseContexts merges the two retrieval outputs into the single context
// string handed to the provider. The provider never receives an empty
// context: when both paths come up dry it gets an explicit no-data notice.
func fuseContexts(semanticContext, structuredContext string) string {
	switch {
	case semanticContext != "" && structuredContext != "":
		return fmt.Sprintf("=== Semantic Search Results ===\n%s\n\n=== Structured Data ===\n%s", semanticContext, structuredContext)
	case semanticContext != "":
		return semanticContext
	case structuredContext != "":
		return structuredContext
	default:
		return retrieval.NoResultsMessage
	}
}

// extractSources builds the citation list from semantic search metadata,
// deduplicated by entity id in first-seen order. Structured retrieval
// contributes no sources.
func extractSources(results []models.SearchResult) []models.Source {
	seen := make(map[string]bool)
	sources := make([]models.Source, 0, len(results))

	for _, r := range results {
		md := r.Metadata
		docType := metadataString(md, "type", models.DocTypeProgram)

		var id, title string
		switch docType {
		case models.DocTypeProgram:
			id = metadataString(md, "program_id", "")
			title = metadataString(md, "program_name", "Unknown Program")
		case models.DocTypeRisk:
			id = metadataString(md, "risk_id", "")
			title = "Risk: " + metadataString(md, "program_name", "Unknown")
		case models.DocTypeMilestone:
			id = metadataString(md, "milestone_id", "")
			title = "Milestone: " + metadataString(md, "program_name", "Unknown")
		default:
			id = metadataString(md, "program_id", "")
			title = metadataString(md, "program_name", "Unknown")
		}

		if id != "" && !seen[id] {
			seen[id] = true
			sources = append(sources, models.Source{Type: docType, ID: id, Title: title})
		}
	}

	return sources
}

func metadataString(md map[string]interface{}, key, fallback string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return fallback
}

// determineConfidence grades answer grounding from retrieval signals: the
// average semantic relevance when search returned anything, otherwise the
// weight of the structured context.
func determineConfidence(results []models.SearchResult, structuredContext string) string {
	if len(results) == 0 && structuredContext == "" {
		return models.ConfidenceLow
	}

	if len(results) > 0 {
		total := 0.0
		for _, r := range results {
			total += r.RelevanceScore
		}
		avg := total / float64(len(results))
		if avg > 0.5 {
			return models.ConfidenceHigh
		}
		if avg > 0.2 {
			return models.ConfidenceMedium
		}
	}

	if len(structuredContext) > 100 {
		return models.ConfidenceHigh
	}
	return models.ConfidenceMedium
}

// ProcessQuery answers one question synchronously. Generation failures are
// absorbed into an apology answer with low confidence; only entity store
// failures surface as errors.
func (s *Service) ProcessQuery(ctx context.Context, question string, programID string, history []interfaces.Message) (models.QueryResult, error) {
	ret, err := s.retrieve(ctx, question, programID)
	if err != nil {
		return models.QueryResult{}, err
	}

	sources := extractSources(ret.searchResults)
	confidence := determineConfidence(ret.searchResults, ret.structuredContext)

	messages := BuildChatMessages(question, history, s.provider.Name())
	answer, err := s.provider.Generate(ctx, messages, ret.combinedContext, qaTemperature)
	if err != nil {
		s.logger.Error().Err(err).Msg("LLM generation failed")
		answer = apologyMessage
		confidence = models.ConfidenceLow
	}

	return models.QueryResult{Answer: answer, Sources: sources, Confidence: confidence}, nil
}

// ProcessQueryStream answers one question as a token stream. Retrieval and
// scoring complete before the first token; the channel then carries token
// events in generation order and closes after one final event holding the
// assembled QueryResult. A mid-stream provider failure emits the apology as
// a token, and the final result carries the apology with low confidence.
func (s *Service) ProcessQueryStream(ctx context.Context, question string, programID string, history []interfaces.Message) (<-chan models.StreamEvent, error) {
	ret, err := s.retrieve(ctx, question, programID)
	if err != nil {
		return nil, err
	}

	sources := extractSources(ret.searchResults)
	confidence := determineConfidence(ret.searchResults, ret.structuredContext)
	messages := BuildChatMessages(question, history, s.provider.Name())

	events := make(chan models.StreamEvent, 100)
	common.SafeGo(s.logger, "query-stream", func() {
		defer close(events)

		var answer strings.Builder
		streamErr := s.provider.Stream(ctx, messages, ret.combinedContext, qaTemperature, func(token string) {
			answer.WriteString(token)
			select {
			case events <- models.StreamEvent{Token: token}:
			case <-ctx.Done():
			}
		})
		if streamErr != nil {
			s.logger.Error().Err(streamErr).Msg("LLM streaming failed")
			answer.Reset()
			answer.WriteString(apologyMessage)
			confidence = models.ConfidenceLow
			select {
			case events <- models.StreamEvent{Token: apologyMessage}:
			case <-ctx.Done():
			}
		}

		result := models.QueryResult{Answer: answer.String(), Sources: sources, Confidence: confidence}
		select {
		case events <- models.StreamEvent{Result: &result}:
		case <-ctx.Done():
		}
	})

	return events, nil
}

// GenerateProactiveInsight produces one actionable callout about the
// current portfolio, grounded in a broad semantic survey plus a status
// count rollup.
func (s *Service) GenerateProactiveInsight(ctx context.Context) (models.QueryResult, error) {
	var semanticContext string
	if s.index.IsReady() {
		semanticContext = s.semantic.ContextForQuery(ctx, insightSurveyQuery, insightSurveyResults, "")
	} else {
		s.logger.Warn().Msg("Semantic index not ready, proactive insight will use structured data only")
	}

	programs, err := s.entities.ListPrograms(ctx)
	if err != nil {
		return models.QueryResult{}, err
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "\nPortfolio Summary: %d total programs\n", len(programs))
	for _, sc := range statusCounts(programs) {
		fmt.Fprintf(&summary, "- %s: %d\n", sc.status, sc.count)
	}

	messages := []interfaces.Message{
		{Role: "system", Content: GetSystemPrompt(s.provider.Name())},
		{Role: "user", Content: ProactiveInsightPrompt},
	}
	answer, err := s.provider.Generate(ctx, messages, semanticContext+summary.String(), insightTemperature)
	if err != nil {
		s.logger.Error().Err(err).Msg("Proactive insight generation failed")
		return models.QueryResult{Answer: insightFallback, Sources: []models.Source{}, Confidence: models.ConfidenceLow}, nil
	}

	return models.QueryResult{Answer: answer, Sources: []models.Source{}, Confidence: models.ConfidenceHigh}, nil
}

// GeneratePortfolioSummary produces the Monday morning briefing from pure
// structured aggregation; no semantic retrieval is involved.
func (s *Service) GeneratePortfolioSummary(ctx context.Context) (models.QueryResult, error) {
	programs, err := s.entities.ListPrograms(ctx)
	if err != nil {
		return models.QueryResult{}, err
	}

	messages := []interfaces.Message{
		{Role: "system", Content: GetSystemPrompt(s.provider.Name())},
		{Role: "user", Content: SummaryPrompt},
	}
	answer, err := s.provider.Generate(ctx, messages, buildBriefingContext(programs, s.now()), insightTemperature)
	if err != nil {
		s.logger.Error().Err(err).Msg("Portfolio summary generation failed")
		return models.QueryResult{Answer: summaryFallback, Sources: []models.Source{}, Confidence: models.ConfidenceLow}, nil
	}

	return models.QueryResult{Answer: answer, Sources: []models.Source{}, Confidence: models.ConfidenceHigh}, nil
}

type statusCount struct {
	status string
	count  int
}

// statusCounts tallies programs by status, keeping first-seen order so the
// rendered breakdown is stable for a given portfolio ordering.
func statusCounts(programs []models.Program) []statusCount {
	index := make(map[string]int)
	var counts []statusCount
	for _, p := range programs {
		if i, ok := index[p.Status]; ok {
			counts[i].count++
			continue
		}
		index[p.Status] = len(counts)
		counts = append(counts, statusCount{status: p.Status, count: 1})
	}
	return counts
}

// buildBriefingContext renders the structured aggregation the briefing
// prompt works from: status counts, attention-worthy programs, launches in
// the next seven days, and open high-severity risks.
func buildBriefingContext(programs []models.Program, now time.Time) string {
	var parts []string

	parts = append(parts, "Status Breakdown:")
	for _, sc := range statusCounts(programs) {
		parts = append(parts, fmt.Sprintf("- %s: %d programs", sc.status, sc.count))
	}

	var attention []models.Program
	for _, p := range programs {
		if p.Status == models.StatusAtRisk || p.Status == models.StatusOffTrack {
			attention = append(attention, p)
		}
	}
	if len(attention) > 0 {
		parts = append(parts, "\nPrograms Needing Attention:")
		for _, p := range attention {
			parts = append(parts, fmt.Sprintf("- %s (%s): %s", p.Name, p.Status, p.LastUpdate))
		}
	}

	var launching []models.Program
	for _, p := range programs {
		if launchesWithin(p.LaunchDate, now, 7) {
			launching = append(launching, p)
		}
	}
	if len(launching) > 0 {
		parts = append(parts, "\nLaunching This Week:")
		for _, p := range launching {
			parts = append(parts, fmt.Sprintf("- %s: %s", p.Name, p.LaunchDate))
		}
	}

	var critical []string
	for _, p := range programs {
		for _, r := range p.Risks {
			if r.Severity == models.SeverityHigh && r.Status == models.RiskStatusOpen {
				critical = append(critical, fmt.Sprintf("- %s: %s", p.Name, r.Title))
			}
		}
	}
	if len(critical) > 0 {
		parts = append(parts, "\nCritical Risks:")
		parts = append(parts, critical...)
	}

	return strings.Join(parts, "\n")
}

// launchesWithin reports whether a YYYY-MM-DD launch date falls inside
// [today, today+days). Unparseable or empty dates never match.
func launchesWithin(launchDate string, now time.Time, days int) bool {
	if launchDate == "" {
		return false
	}
	d, err := time.Parse("2006-01-02", launchDate)
	if err != nil {
		return false
	}
	// time.Parse yields UTC midnight; compare against UTC midnight of now's
	// calendar day so the window is a whole number of days.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(today) && d.Before(today.AddDate(0, 0, days))
}
