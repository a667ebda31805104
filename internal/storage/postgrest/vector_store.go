package postgrest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/models"
)

// insertBatchSize is the row chunk for embedding inserts. Vector rows are
// large; batches keep each request under PostgREST's payload comfort zone.
const insertBatchSize = 100

// VectorStore implements the VectorStore interface over Supabase pgvector:
// plain table writes for rows and the match_embeddings database function for
// similarity search.
type VectorStore struct {
	client *Client
	logger arbor.ILogger
}

// NewVectorStore creates a new pgvector store over an existing PostgREST
// client.
func NewVectorStore(client *Client, logger arbor.ILogger) *VectorStore {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &VectorStore{
		client: client,
		logger: logger,
	}
}

// embeddingMatch is one row returned by the match_embeddings function.
type embeddingMatch struct {
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity"`
}

// Clear removes every embedding row for the organization. return=minimal
// keeps the response from echoing thousands of vector rows back.
func (v *VectorStore) Clear(ctx context.Context, organizationID string) error {
	resp, err := v.client.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetQueryParam("organization_id", eq(organizationID)).
		Delete(tableURL("embeddings"))
	if err := v.client.check("DELETE", "embeddings", resp, err); err != nil {
		return err
	}
	v.logger.Info().Msg("Cleared existing embeddings")
	return nil
}

// Upsert writes rows in insert batches of 100.
func (v *VectorStore) Upsert(ctx context.Context, organizationID string, rows []models.EmbeddingRecord) error {
	for i := range rows {
		rows[i].OrganizationID = organizationID
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		resp, err := v.client.http.R().
			SetContext(ctx).
			SetHeader("Prefer", "return=minimal").
			SetBody(batch).
			Post(tableURL("embeddings"))
		if err := v.client.check("POST", "embeddings", resp, err); err != nil {
			return err
		}
		v.logger.Info().
			Int("batch", start/insertBatchSize+1).
			Int("rows", len(batch)).
			Msg("Inserted embeddings batch")
	}
	return nil
}

// SimilaritySearch calls the match_embeddings function. filter_type is sent
// as null when no type filter applies, matching the function signature.
func (v *VectorStore) SimilaritySearch(ctx context.Context, organizationID string, embedding []float32, limit int, minScore float64, typeFilter string) ([]models.SearchResult, error) {
	payload := map[string]interface{}{
		"query_embedding": embedding,
		"match_count":     limit,
		"match_threshold": minScore,
		"filter_org_id":   organizationID,
		"filter_type":     nullable(typeFilter),
	}

	var matches []embeddingMatch
	if err := v.client.RPC(ctx, "match_embeddings", payload, &matches); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		md := m.Metadata
		if md == nil {
			md = map[string]interface{}{}
		}
		results = append(results, models.SearchResult{
			Content:        m.Content,
			Metadata:       md,
			RelevanceScore: m.Similarity,
		})
	}
	return results, nil
}

// Count returns the indexed row count for the organization via an exact
// count header rather than pulling rows.
func (v *VectorStore) Count(ctx context.Context, organizationID string) (int, error) {
	resp, err := v.client.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "count=exact").
		SetQueryParams(map[string]string{
			"select":          "id",
			"organization_id": eq(organizationID),
			"limit":           "1",
		}).
		Get(tableURL("embeddings"))
	if err := v.client.check("GET", "embeddings", resp, err); err != nil {
		return 0, err
	}
	return parseContentRangeTotal(resp.Header().Get("Content-Range"))
}

// Name identifies the backing store.
func (v *VectorStore) Name() string {
	return "pgvector"
}

// parseContentRangeTotal extracts the total from a PostgREST Content-Range
// header such as "0-0/42" or "*/0".
func parseContentRangeTotal(header string) (int, error) {
	_, totalPart, found := strings.Cut(header, "/")
	if !found {
		return 0, fmt.Errorf("embeddings count: unexpected Content-Range %q", header)
	}
	total, err := strconv.Atoi(totalPart)
	if err != nil {
		return 0, fmt.Errorf("embeddings count: unexpected Content-Range %q", header)
	}
	return total, nil
}
