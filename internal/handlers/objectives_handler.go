package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// ObjectivesHandler handles HTTP requests for strategic objectives
type ObjectivesHandler struct {
	entities interfaces.EntityStore
	logger   arbor.ILogger
}

// NewObjectivesHandler creates a new ObjectivesHandler
func NewObjectivesHandler(entities interfaces.EntityStore, logger arbor.ILogger) *ObjectivesHandler {
	return &ObjectivesHandler{
		entities: entities,
		logger:   logger,
	}
}

// ListObjectivesHandler handles GET /api/strategic-objectives
func (h *ObjectivesHandler) ListObjectivesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	objectives, err := h.entities.ListStrategicObjectives(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list strategic objectives")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch strategic objectives")
		return
	}

	if objectives == nil {
		objectives = []models.StrategicObjective{}
	}

	WriteJSON(w, http.StatusOK, objectives)
}

// CreateObjectiveHandler handles POST /api/strategic-objectives
func (h *ObjectivesHandler) CreateObjectiveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var objective models.StrategicObjective
	if err := json.NewDecoder(r.Body).Decode(&objective); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if objective.Name == "" {
		WriteError(w, http.StatusBadRequest, "Objective name is required")
		return
	}

	created, err := h.entities.CreateStrategicObjective(r.Context(), &objective)
	if err != nil {
		h.logger.Error().Err(err).Str("name", objective.Name).Msg("Failed to create strategic objective")
		WriteError(w, http.StatusInternalServerError, "Failed to create strategic objective")
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}
