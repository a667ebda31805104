package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// SyncHandler handles HTTP requests for tracker synchronization. The sync
// service is nil when no tracker credentials are configured.
type SyncHandler struct {
	sync   interfaces.SyncService
	logger arbor.ILogger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync interfaces.SyncService, logger arbor.ILogger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		logger: logger,
	}
}

// TriggerSyncHandler handles POST /api/sync/trigger
// The sync runs synchronously and returns the completed run record.
func (h *SyncHandler) TriggerSyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if h.sync == nil {
		WriteError(w, http.StatusNotFound, "No active Linear integration found")
		return
	}

	run, err := h.sync.Run(r.Context(), models.SyncTriggerManual)
	if err != nil {
		h.logger.Error().Err(err).Msg("Manual tracker sync failed")
		WriteError(w, http.StatusInternalServerError, "Tracker sync failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// ListRunsHandler handles GET /api/sync/runs
// An optional limit query parameter caps the result (default 10).
func (h *SyncHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if h.sync == nil {
		WriteError(w, http.StatusNotFound, "No active Linear integration found")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.sync.RecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sync runs")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch sync runs")
		return
	}

	if runs == nil {
		runs = []models.SyncRun{}
	}

	WriteJSON(w, http.StatusOK, runs)
}
