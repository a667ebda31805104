package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/storage/chroma"
	"github.com/ternarybob/conspectus/internal/storage/postgrest"
)

// NewVectorStore creates the vector search backend selected in config. The
// pgvector backend shares the PostgREST client with the entity store; the
// chroma backend opens its own connection.
func NewVectorStore(ctx context.Context, cfg *common.Config, client *postgrest.Client, logger arbor.ILogger) (interfaces.VectorStore, error) {
	switch cfg.VectorStore.Backend {
	case "chroma":
		return chroma.NewVectorStore(ctx, cfg, logger)
	case "postgrest", "":
		return postgrest.NewVectorStore(client, logger), nil
	default:
		return nil, fmt.Errorf("unsupported vector store backend: %s (use 'postgrest' or 'chroma')", cfg.VectorStore.Backend)
	}
}
