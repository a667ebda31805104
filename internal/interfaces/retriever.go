package interfaces

import (
	"context"

	"github.com/ternarybob/conspectus/internal/models"
)

// StructuredRetriever builds deterministic context blocks from portfolio
// entities based on keyword triggers found in the question. Every trigger
// that matches contributes its block in a fixed order, so a question can
// pull program focus, risk rollups, and launch windows at once.
type StructuredRetriever interface {
	// BuildContext returns the assembled context for the question, or the
	// empty string when no trigger matched. programID scopes the program
	// focus block when the caller is asking about a specific program.
	BuildContext(ctx context.Context, question string, programID string) (string, error)
}

// SemanticRetriever runs vector similarity search over the indexed
// portfolio documents.
type SemanticRetriever interface {
	// Search returns the top matches above the relevance cutoff, optionally
	// restricted to one document type and post-filtered to one program.
	// Failures are absorbed and logged; callers always receive a usable
	// (possibly empty) slice.
	Search(ctx context.Context, query string, limit int, typeFilter string, programID string) []models.SearchResult

	// ContextForQuery formats search results into a context string for
	// prompt assembly. Returns a fixed sentinel when nothing matched.
	ContextForQuery(ctx context.Context, query string, limit int, programID string) string
}
