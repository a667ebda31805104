package interfaces

import (
	"context"

	"github.com/ternarybob/conspectus/internal/models"
)

// VectorStore is the embedding index consumed by semantic retrieval and
// rebuilt by the indexing pipeline. Rows are scoped to an organization;
// similarity results arrive ranked by score descending.
type VectorStore interface {
	// Clear removes every row for the organization.
	Clear(ctx context.Context, organizationID string) error

	// Upsert writes rows in store-appropriate batches.
	Upsert(ctx context.Context, organizationID string, rows []models.EmbeddingRecord) error

	// SimilaritySearch returns up to limit rows with similarity above
	// minScore, optionally filtered by metadata document type.
	SimilaritySearch(ctx context.Context, organizationID string, embedding []float32, limit int, minScore float64, typeFilter string) ([]models.SearchResult, error)

	// Count returns the number of indexed rows for the organization.
	Count(ctx context.Context, organizationID string) (int, error)

	// Name identifies the backing store ("pgvector" or "chroma").
	Name() string
}
