package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// Service implements IndexService. It owns the vector index lifecycle:
// loading portfolio entities, rendering them as documents, embedding, and
// writing the result to the vector store. Rebuilds are destructive and
// serialized; readiness flips only after a rebuild lands documents.
type Service struct {
	orgID    string
	entities interfaces.EntityStore
	embedder interfaces.EmbeddingService
	store    interfaces.VectorStore
	logger   arbor.ILogger

	rebuildMu sync.Mutex
	ready     atomic.Bool
}

// NewService creates a new index service.
func NewService(cfg *common.Config, entities interfaces.EntityStore, embedder interfaces.EmbeddingService, store interfaces.VectorStore, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Service{
		orgID:    cfg.Database.OrganizationID,
		entities: entities,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Bootstrap adopts an index left behind by a previous run. Returns true when
// the store already holds documents for the organization, in which case the
// service is ready without a rebuild.
func (s *Service) Bootstrap(ctx context.Context) bool {
	count, err := s.store.Count(ctx, s.orgID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not check for existing vector index")
		return false
	}
	if count == 0 {
		return false
	}

	s.ready.Store(true)
	s.logger.Info().
		Int("documents", count).
		Str("store", s.store.Name()).
		Msg("Reusing existing vector index")
	return true
}

// Reindex destructively rebuilds the index from current portfolio entities.
// The index is marked not ready for the duration so semantic retrieval
// degrades to empty results instead of serving a half-written index.
func (s *Service) Reindex(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	s.ready.Store(false)

	if err := s.store.Clear(ctx, s.orgID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear existing embeddings, continuing with rebuild")
	}

	programs, err := s.entities.ListPrograms(ctx)
	if err != nil {
		return fmt.Errorf("failed to load programs for indexing: %w", err)
	}

	documents := BuildPortfolioDocuments(programs)
	if len(documents) == 0 {
		s.logger.Warn().Msg("No portfolio documents to index")
		return nil
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %d documents: %w", len(documents), err)
	}
	if len(vectors) != len(documents) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d documents", len(vectors), len(documents))
	}

	rows := make([]models.EmbeddingRecord, len(documents))
	for i, doc := range documents {
		rows[i] = models.EmbeddingRecord{
			OrganizationID: s.orgID,
			Content:        doc.Content,
			Metadata:       doc.Metadata,
			Embedding:      vectors[i],
		}
	}

	if err := s.store.Upsert(ctx, s.orgID, rows); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}

	s.ready.Store(true)
	s.logger.Info().
		Int("programs", len(programs)).
		Int("documents", len(documents)).
		Str("store", s.store.Name()).
		Str("model", s.embedder.ModelName()).
		Dur("duration", time.Since(start)).
		Msg("Vector index rebuilt")
	return nil
}

// IsReady reports whether the index holds documents and can serve searches.
func (s *Service) IsReady() bool {
	return s.ready.Load()
}

// WaitReady blocks until the index is ready or the context expires.
func (s *Service) WaitReady(ctx context.Context) bool {
	if s.ready.Load() {
		return true
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.ready.Load()
		case <-ticker.C:
			if s.ready.Load() {
				return true
			}
		}
	}
}

// Stats reports the current document count and index status.
func (s *Service) Stats(ctx context.Context) models.IndexStats {
	if !s.ready.Load() {
		return models.IndexStats{Store: s.store.Name(), Status: models.IndexStatusNotInitialized}
	}

	count, err := s.store.Count(ctx, s.orgID)
	if err != nil {
		return models.IndexStats{Store: s.store.Name(), Status: models.IndexStatusError, Error: err.Error()}
	}

	status := models.IndexStatusReady
	if count == 0 {
		status = models.IndexStatusEmpty
	}
	return models.IndexStats{IndexedDocuments: count, Store: s.store.Name(), Status: status}
}
