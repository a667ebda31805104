package interfaces

import (
	"context"

	"github.com/ternarybob/conspectus/internal/models"
)

// IndexService owns the vector index lifecycle: building documents from
// portfolio entities, embedding them, and tracking readiness.
type IndexService interface {
	// Reindex destructively rebuilds the index from current entities.
	// Concurrent calls serialize; the index is unavailable mid-rebuild.
	Reindex(ctx context.Context) error

	// IsReady reports whether the index holds at least one document.
	IsReady() bool

	// WaitReady blocks until the index is ready or the context expires.
	// Returns false on timeout.
	WaitReady(ctx context.Context) bool

	// Stats reports document count and index status.
	Stats(ctx context.Context) models.IndexStats
}
