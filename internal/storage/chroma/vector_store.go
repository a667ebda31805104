package chroma

import (
	"context"
	"encoding/json"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/models"
)

const (
	addBatchSize = 100
	metaOrgID    = "organization_id"
)

// VectorStore implements the VectorStore interface over a Chroma collection.
// Every document carries its organization id as metadata, so reads and
// deletes stay org-scoped through where filters.
type VectorStore struct {
	client     chromago.Client
	collection chromago.Collection
	logger     arbor.ILogger
}

// NewVectorStore connects to the configured Chroma server and gets or creates
// the portfolio collection. The collection is created with cosine space so
// query distances convert directly to similarity scores.
func NewVectorStore(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*VectorStore, error) {
	if logger == nil {
		logger = common.GetLogger()
	}

	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.VectorStore.ChromaURL))
	if err != nil {
		return nil, fmt.Errorf("chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(ctx, cfg.VectorStore.Collection,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
			),
		),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chroma collection %s: %w", cfg.VectorStore.Collection, err)
	}

	logger.Info().
		Str("url", cfg.VectorStore.ChromaURL).
		Str("collection", cfg.VectorStore.Collection).
		Msg("Connected to Chroma")

	return &VectorStore{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// Close releases the underlying Chroma client.
func (s *VectorStore) Close() error {
	return s.client.Close()
}

// Clear removes all documents for the organization.
func (s *VectorStore) Clear(ctx context.Context, orgID string) error {
	where := chromago.EqString(metaOrgID, orgID)
	if err := s.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		return fmt.Errorf("chroma clear: %w", err)
	}
	s.logger.Info().Str("organization_id", orgID).Msg("Cleared existing embeddings")
	return nil
}

// Upsert adds embedding records in batches. Document ids are generated fresh
// on every rebuild; stale documents are removed by Clear beforehand.
func (s *VectorStore) Upsert(ctx context.Context, orgID string, rows []models.EmbeddingRecord) error {
	for start := 0; start < len(rows); start += addBatchSize {
		end := start + addBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		ids := make([]chromago.DocumentID, 0, len(batch))
		texts := make([]string, 0, len(batch))
		vectors := make([]embeddings.Embedding, 0, len(batch))
		metadatas := make([]chromago.DocumentMetadata, 0, len(batch))
		for _, row := range batch {
			ids = append(ids, chromago.DocumentID(uuid.New().String()))
			texts = append(texts, row.Content)
			vectors = append(vectors, embeddings.NewEmbeddingFromFloat32(row.Embedding))
			metadatas = append(metadatas, recordMetadata(orgID, row.Metadata))
		}

		err := s.collection.Add(ctx,
			chromago.WithIDs(ids...),
			chromago.WithTexts(texts...),
			chromago.WithEmbeddings(vectors...),
			chromago.WithMetadatas(metadatas...),
		)
		if err != nil {
			return fmt.Errorf("chroma add: %w", err)
		}
		s.logger.Info().
			Int("batch", start/addBatchSize+1).
			Int("rows", len(batch)).
			Msg("Inserted embeddings batch")
	}
	return nil
}

// SimilaritySearch queries the collection and returns documents whose cosine
// similarity clears minScore, best first.
func (s *VectorStore) SimilaritySearch(ctx context.Context, orgID string, embedding []float32, limit int, minScore float64, typeFilter string) ([]models.SearchResult, error) {
	where := chromago.EqString(metaOrgID, orgID)
	if typeFilter != "" {
		where = chromago.And(where, chromago.EqString("type", typeFilter))
	}

	results, err := s.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding)),
		chromago.WithNResults(limit),
		chromago.WithWhereQuery(where),
	)
	if err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}

	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()
	if len(docGroups) == 0 {
		return []models.SearchResult{}, nil
	}

	out := make([]models.SearchResult, 0, len(docGroups[0]))
	for i, doc := range docGroups[0] {
		// Cosine distance to similarity.
		score := 1.0
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			score = 1 - float64(distGroups[0][i])
		}
		if score < minScore {
			continue
		}
		var meta chromago.DocumentMetadata
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			meta = metaGroups[0][i]
		}
		out = append(out, models.SearchResult{
			Content:        doc.ContentString(),
			Metadata:       metadataMap(meta),
			RelevanceScore: score,
		})
	}
	return out, nil
}

// Count returns the collection document total. Chroma's count API takes no
// filter; the collection holds a single organization.
func (s *VectorStore) Count(ctx context.Context, orgID string) (int, error) {
	count, err := s.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("chroma count: %w", err)
	}
	return int(count), nil
}

// Name identifies the backend in index stats and health output.
func (s *VectorStore) Name() string {
	return "chroma"
}

// recordMetadata flattens a record's metadata into Chroma attributes with the
// organization id stamped on top.
func recordMetadata(orgID string, fields map[string]interface{}) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(fields)+1)
	attrs = append(attrs, chromago.NewStringAttribute(metaOrgID, orgID))
	for k, v := range fields {
		if k == metaOrgID {
			continue
		}
		switch val := v.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, val))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(val)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, val))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, val))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, val))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(k, fmt.Sprintf("%v", val)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// metadataMap converts DocumentMetadata to a plain map. The type exposes no
// map accessor, so round-trip through its JSON encoding.
func metadataMap(meta chromago.DocumentMetadata) map[string]interface{} {
	out := map[string]interface{}{}
	if meta == nil {
		return out
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
