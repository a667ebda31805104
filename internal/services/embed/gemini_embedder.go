package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/services/llm"
)

// GeminiEmbedder implements the EmbeddingService interface using the
// gemini-embedding-001 family of models.
//
// Batches are embedded in one API call each and the response vectors come
// back in request order, so callers can zip inputs to outputs by index.
type GeminiEmbedder struct {
	config *common.EmbeddingsConfig
	logger arbor.ILogger
	client *genai.Client
	retry  *llm.GeminiRetryConfig
}

// NewGeminiEmbedder creates a new Gemini embedding service instance.
//
// The configured output dimensionality must match the vector column in the
// database; every returned vector is validated against it.
//
// Parameters:
//   - geminiConfig: Gemini API credentials
//   - embedConfig: Embedding model, dimension, and batch settings
//   - logger: Structured logger for service operations
//
// Returns:
//   - *GeminiEmbedder: Initialized service ready for use
//   - error: nil on success, error with details on failure
func NewGeminiEmbedder(geminiConfig *common.GeminiConfig, embedConfig *common.EmbeddingsConfig, logger arbor.ILogger) (*GeminiEmbedder, error) {
	if geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for embeddings (set via GEMINI_API_KEY, CONSPECTUS_GEMINI_API_KEY, or gemini.api_key in config)")
	}

	// Set defaults if not specified
	if embedConfig.Model == "" {
		embedConfig.Model = "gemini-embedding-001"
	}
	if embedConfig.Dimension <= 0 {
		embedConfig.Dimension = 768
	}
	if embedConfig.BatchSize <= 0 {
		embedConfig.BatchSize = 100
	}

	// Initialize genai client
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiEmbedder{
		config: embedConfig,
		logger: logger,
		client: client,
		retry:  llm.NewDefaultRetryConfig(),
	}

	logger.Debug().
		Str("model", embedConfig.Model).
		Int("dimension", embedConfig.Dimension).
		Int("batch_size", embedConfig.BatchSize).
		Msg("Gemini embedder initialized successfully")

	return service, nil
}

// EmbedTexts generates embeddings for a batch of texts, one vector per
// input in input order. Inputs larger than the configured batch size are
// split into sequential API calls.
func (s *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	startTime := time.Now()
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d failed: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	s.logger.Debug().
		Int("texts", len(texts)).
		Int("dimension", s.config.Dimension).
		Dur("duration", time.Since(startTime)).
		Msg("Embedding generation completed")

	return vectors, nil
}

// EmbedQuery generates an embedding for a single search query using the
// same model and dimensionality as document embeddings.
func (s *GeminiEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty for embedding generation")
	}

	vectors, err := s.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// ModelName returns the embedding model identifier
func (s *GeminiEmbedder) ModelName() string {
	return s.config.Model
}

// Dimension returns the configured output dimensionality
func (s *GeminiEmbedder) Dimension() int {
	return s.config.Dimension
}

// embedBatch embeds one batch with rate limit retry. The response must
// carry exactly one vector per input.
func (s *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	// Configure embedding with output dimensionality
	outputDim := int32(s.config.Dimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	// Generate embeddings with retry on rate limit errors
	var result *genai.EmbedContentResponse
	var apiErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		result, apiErr = s.client.Models.EmbedContent(ctx, s.config.Model, contents, embeddingConfig)
		if apiErr == nil {
			break
		}

		if attempt == s.retry.MaxRetries || !llm.IsRateLimitError(apiErr) {
			break
		}

		backoff := s.retry.CalculateBackoff(attempt, llm.ExtractRetryDelay(apiErr))
		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini embedding call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", apiErr)
	}

	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), got)
	}

	vectors := make([][]float32, 0, len(texts))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) != s.config.Dimension {
			got := 0
			if emb != nil {
				got = len(emb.Values)
			}
			return nil, fmt.Errorf("embedding dimension mismatch at index %d: expected %d, got %d", i, s.config.Dimension, got)
		}
		vectors = append(vectors, emb.Values)
	}

	return vectors, nil
}
