package interfaces

import "context"

// EmbeddingService generates vector embeddings
type EmbeddingService interface {
	// Generate embeddings for a batch of texts, one vector per input in
	// input order. Batches larger than the backend limit are chunked
	// internally.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Generate a query embedding with the same model used for documents
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Get model information
	ModelName() string
	Dimension() int
}
