package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
)

// rebuildTimeout bounds one background index rebuild.
const rebuildTimeout = 10 * time.Minute

// IndexHandler handles HTTP requests for the semantic index
type IndexHandler struct {
	index  interfaces.IndexService
	logger arbor.ILogger
}

// NewIndexHandler creates a new IndexHandler
func NewIndexHandler(index interfaces.IndexService, logger arbor.ILogger) *IndexHandler {
	return &IndexHandler{
		index:  index,
		logger: logger,
	}
}

// StatsHandler handles GET /api/index/stats
func (h *IndexHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.index.Stats(r.Context()))
}

// RebuildHandler handles POST /api/index/rebuild
// The rebuild runs in the background; poll /api/index/stats for completion.
func (h *IndexHandler) RebuildHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	common.SafeGo(h.logger, "index-rebuild", func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()

		if err := h.index.Reindex(ctx); err != nil {
			h.logger.Error().Err(err).Msg("Index rebuild failed")
			return
		}
		h.logger.Info().Msg("Index rebuild completed")
	})

	WriteStarted(w, "Index rebuild started")
}
