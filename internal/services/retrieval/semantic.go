package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// NoResultsMessage is returned by ContextForQuery when semantic search
// produces nothing, so the model is told explicitly instead of receiving an
// empty context.
const NoResultsMessage = "No relevant information found in the portfolio database."

// SemanticService implements SemanticRetriever over the vector index. All
// failures are absorbed: a search that cannot run returns empty results, and
// the orchestrator falls back to structured retrieval.
type SemanticService struct {
	orgID     string
	threshold float64
	embedder  interfaces.EmbeddingService
	store     interfaces.VectorStore
	index     interfaces.IndexService
	logger    arbor.ILogger
}

// NewSemanticService creates a new semantic retrieval service.
func NewSemanticService(cfg *common.Config, embedder interfaces.EmbeddingService, store interfaces.VectorStore, index interfaces.IndexService, logger arbor.ILogger) *SemanticService {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &SemanticService{
		orgID:     cfg.Database.OrganizationID,
		threshold: cfg.VectorStore.MatchThreshold,
		embedder:  embedder,
		store:     store,
		index:     index,
		logger:    logger,
	}
}

// Search embeds the query and runs similarity search against the vector
// store. typeFilter restricts results to one document type server-side;
// programID is applied as a client-side post-filter, so fewer than limit
// rows can come back even when more exist.
func (s *SemanticService) Search(ctx context.Context, query string, limit int, typeFilter string, programID string) []models.SearchResult {
	if !s.index.IsReady() {
		s.logger.Warn().Msg("Semantic search requested before the index is ready")
		return nil
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Error().Err(err).Msg("Semantic search failed to embed query")
		return nil
	}

	results, err := s.store.SimilaritySearch(ctx, s.orgID, embedding, limit, s.threshold, typeFilter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Semantic search failed")
		return nil
	}

	if programID == "" {
		return results
	}
	var filtered []models.SearchResult
	for _, r := range results {
		if id, ok := r.Metadata["program_id"].(string); ok && id == programID {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// ContextForQuery renders search results as numbered blocks labeled with
// their relevance, in store order. Returns NoResultsMessage when nothing
// matched.
func (s *SemanticService) ContextForQuery(ctx context.Context, query string, limit int, programID string) string {
	results := s.Search(ctx, query, limit, "", programID)
	if len(results) == 0 {
		return NoResultsMessage
	}

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		relevance := "N/A"
		if r.RelevanceScore != 0 {
			relevance = fmt.Sprintf("%.2f", r.RelevanceScore)
		}
		blocks = append(blocks, fmt.Sprintf("--- Document %d (relevance: %s) ---\n%s", i+1, relevance, r.Content))
	}
	return strings.Join(blocks, "\n\n")
}
