package interfaces

import (
	"context"

	"github.com/ternarybob/conspectus/internal/models"
)

// QueryService orchestrates question answering over the portfolio: it
// classifies the question, gathers semantic and structured context, calls
// the LLM provider, and attributes sources.
type QueryService interface {
	// ProcessQuery answers a question in one shot. LLM and retrieval
	// failures are absorbed into a low-confidence apology answer; the
	// returned error is reserved for entity store failures.
	ProcessQuery(ctx context.Context, question string, programID string, history []Message) (models.QueryResult, error)

	// ProcessQueryStream answers a question token by token. The channel
	// carries token events followed by exactly one final event holding the
	// full QueryResult, then closes.
	ProcessQueryStream(ctx context.Context, question string, programID string, history []Message) (<-chan models.StreamEvent, error)

	// GenerateProactiveInsight produces an unprompted portfolio
	// observation for the daily briefing.
	GenerateProactiveInsight(ctx context.Context) (models.QueryResult, error)

	// GeneratePortfolioSummary produces the weekly status summary.
	GeneratePortfolioSummary(ctx context.Context) (models.QueryResult, error)
}
