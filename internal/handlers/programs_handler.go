package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// ProgramsHandler handles HTTP requests for portfolio programs and their
// nested risks and milestones
type ProgramsHandler struct {
	entities interfaces.EntityStore
	logger   arbor.ILogger
}

// NewProgramsHandler creates a new ProgramsHandler
func NewProgramsHandler(entities interfaces.EntityStore, logger arbor.ILogger) *ProgramsHandler {
	return &ProgramsHandler{
		entities: entities,
		logger:   logger,
	}
}

// ListProgramsHandler handles GET /api/programs
// Optional status and product_line query parameters filter the result.
func (h *ProgramsHandler) ListProgramsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	programs, err := h.entities.ListPrograms(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list programs")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch programs")
		return
	}

	status := r.URL.Query().Get("status")
	productLine := r.URL.Query().Get("product_line")

	// Return programs array directly (not wrapped in object)
	filtered := make([]models.Program, 0, len(programs))
	for _, p := range programs {
		if status != "" && p.Status != status {
			continue
		}
		if productLine != "" && p.ProductLine != productLine {
			continue
		}
		filtered = append(filtered, p)
	}

	WriteJSON(w, http.StatusOK, filtered)
}

// GetProgramHandler handles GET /api/programs/{id}
func (h *ProgramsHandler) GetProgramHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/programs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Program ID is required")
		return
	}

	program, err := h.entities.GetProgram(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Program %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get program")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch program")
		return
	}

	WriteJSON(w, http.StatusOK, program)
}

// CreateProgramHandler handles POST /api/programs
func (h *ProgramsHandler) CreateProgramHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var program models.Program
	if err := json.NewDecoder(r.Body).Decode(&program); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if program.Name == "" {
		WriteError(w, http.StatusBadRequest, "Program name is required")
		return
	}

	created, err := h.entities.CreateProgram(r.Context(), &program)
	if err != nil {
		h.logger.Error().Err(err).Str("name", program.Name).Msg("Failed to create program")
		WriteError(w, http.StatusInternalServerError, "Failed to create program")
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}

// UpdateProgramHandler handles PUT /api/programs/{id}
// The body is a partial update: only the fields present are changed.
func (h *ProgramsHandler) UpdateProgramHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/programs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Program ID is required")
		return
	}

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(fields) == 0 {
		WriteError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	updated, err := h.entities.UpdateProgram(r.Context(), id, fields)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Program %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update program")
		WriteError(w, http.StatusInternalServerError, "Failed to update program")
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// DeleteProgramHandler handles DELETE /api/programs/{id}
func (h *ProgramsHandler) DeleteProgramHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/programs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Program ID is required")
		return
	}

	if err := h.entities.DeleteProgram(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Program %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete program")
		WriteError(w, http.StatusInternalServerError, "Failed to delete program")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateRiskHandler handles POST /api/programs/{id}/risks
func (h *ProgramsHandler) CreateRiskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	programID := childCollectionProgramID(r.URL.Path, "/risks")
	if programID == "" {
		WriteError(w, http.StatusBadRequest, "Program ID is required")
		return
	}

	var risk models.Risk
	if err := json.NewDecoder(r.Body).Decode(&risk); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if risk.Title == "" {
		WriteError(w, http.StatusBadRequest, "Risk title is required")
		return
	}

	if _, err := h.entities.GetProgram(r.Context(), programID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Program %s not found", programID))
			return
		}
		h.logger.Error().Err(err).Str("program_id", programID).Msg("Failed to get program")
		WriteError(w, http.StatusInternalServerError, "Failed to create risk")
		return
	}

	risk.ProgramID = programID
	created, err := h.entities.CreateRisk(r.Context(), &risk)
	if err != nil {
		h.logger.Error().Err(err).Str("program_id", programID).Msg("Failed to create risk")
		WriteError(w, http.StatusInternalServerError, "Failed to create risk")
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}

// UpdateRiskHandler handles PUT /api/risks/{id}
func (h *ProgramsHandler) UpdateRiskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/risks/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Risk ID is required")
		return
	}

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.entities.UpdateRisk(r.Context(), id, fields)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Risk %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update risk")
		WriteError(w, http.StatusInternalServerError, "Failed to update risk")
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// DeleteRiskHandler handles DELETE /api/risks/{id}
func (h *ProgramsHandler) DeleteRiskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/risks/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Risk ID is required")
		return
	}

	if err := h.entities.DeleteRisk(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Risk %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete risk")
		WriteError(w, http.StatusInternalServerError, "Failed to delete risk")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateMilestoneHandler handles POST /api/programs/{id}/milestones
func (h *ProgramsHandler) CreateMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	programID := childCollectionProgramID(r.URL.Path, "/milestones")
	if programID == "" {
		WriteError(w, http.StatusBadRequest, "Program ID is required")
		return
	}

	var milestone models.Milestone
	if err := json.NewDecoder(r.Body).Decode(&milestone); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if milestone.Name == "" {
		WriteError(w, http.StatusBadRequest, "Milestone name is required")
		return
	}

	if _, err := h.entities.GetProgram(r.Context(), programID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Program %s not found", programID))
			return
		}
		h.logger.Error().Err(err).Str("program_id", programID).Msg("Failed to get program")
		WriteError(w, http.StatusInternalServerError, "Failed to create milestone")
		return
	}

	milestone.ProgramID = programID
	created, err := h.entities.CreateMilestone(r.Context(), &milestone)
	if err != nil {
		h.logger.Error().Err(err).Str("program_id", programID).Msg("Failed to create milestone")
		WriteError(w, http.StatusInternalServerError, "Failed to create milestone")
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}

// UpdateMilestoneHandler handles PUT /api/milestones/{id}
func (h *ProgramsHandler) UpdateMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/milestones/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Milestone ID is required")
		return
	}

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.entities.UpdateMilestone(r.Context(), id, fields)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Milestone %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update milestone")
		WriteError(w, http.StatusInternalServerError, "Failed to update milestone")
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// DeleteMilestoneHandler handles DELETE /api/milestones/{id}
func (h *ProgramsHandler) DeleteMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/milestones/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Milestone ID is required")
		return
	}

	if err := h.entities.DeleteMilestone(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Milestone %s not found", id))
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete milestone")
		WriteError(w, http.StatusInternalServerError, "Failed to delete milestone")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// childCollectionProgramID extracts the program ID from a nested collection
// path. Example: "/api/programs/abc-123/risks" with suffix "/risks" returns
// "abc-123".
func childCollectionProgramID(path, suffix string) string {
	rest := strings.TrimPrefix(path, "/api/programs/")
	rest = strings.TrimSuffix(rest, "/")
	if !strings.HasSuffix(rest, suffix) {
		return ""
	}
	return strings.TrimSuffix(rest, suffix)
}
