package postgrest

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// Row types mirror the PostgREST JSON for each table. Nullable columns
// decode as zero values.
type programRow struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Owner         string `json:"owner"`
	Team          string `json:"team"`
	ProductLine   string `json:"product_line"`
	PipelineStage string `json:"pipeline_stage"`
	LaunchDate    string `json:"launch_date"`
	Progress      int    `json:"progress"`
	LastUpdate    string `json:"last_update"`
	ExternalID    string `json:"external_id"`
	SyncSource    string `json:"sync_source"`
}

type riskRow struct {
	ID          string `json:"id"`
	ProgramID   string `json:"program_id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
	Status      string `json:"status"`
}

type milestoneRow struct {
	ID            string `json:"id"`
	ProgramID     string `json:"program_id"`
	Name          string `json:"name"`
	DueDate       string `json:"due_date"`
	CompletedDate string `json:"completed_date"`
	Status        string `json:"status"`
	ExternalID    string `json:"external_id"`
	SyncSource    string `json:"sync_source"`
}

type objectiveRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Owner       string `json:"owner"`
}

type objectiveMapRow struct {
	ProgramID            string `json:"program_id"`
	StrategicObjectiveID string `json:"strategic_objective_id"`
}

// EntityStore implements the EntityStore interface over PostgREST. List and
// Get assemble nested Programs with client-side joins; the database enforces
// referential integrity and cascades deletes.
type EntityStore struct {
	client *Client
	orgID  string
	logger arbor.ILogger
}

// NewEntityStore creates a new PostgREST entity store scoped to the
// configured organization.
func NewEntityStore(cfg *common.Config, client *Client, logger arbor.ILogger) *EntityStore {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &EntityStore{
		client: client,
		orgID:  cfg.Database.OrganizationID,
		logger: logger,
	}
}

// ListPrograms returns all programs for the organization with risks,
// milestones, and resolved strategic objective names nested.
func (s *EntityStore) ListPrograms(ctx context.Context) ([]models.Program, error) {
	orgEq := eq(s.orgID)

	var progRows []programRow
	if err := s.client.Select(ctx, "programs", map[string]string{"select": "*", "organization_id": orgEq}, &progRows); err != nil {
		return nil, err
	}
	var riskRows []riskRow
	if err := s.client.Select(ctx, "risks", map[string]string{"select": "*", "organization_id": orgEq}, &riskRows); err != nil {
		return nil, err
	}
	var msRows []milestoneRow
	if err := s.client.Select(ctx, "milestones", map[string]string{"select": "*", "organization_id": orgEq}, &msRows); err != nil {
		return nil, err
	}
	var mapRows []objectiveMapRow
	if err := s.client.Select(ctx, "program_strategic_objectives", map[string]string{"select": "*"}, &mapRows); err != nil {
		return nil, err
	}

	risksByProgram := make(map[string][]models.Risk)
	for _, r := range riskRows {
		risksByProgram[r.ProgramID] = append(risksByProgram[r.ProgramID], riskFromRow(r))
	}
	milestonesByProgram := make(map[string][]models.Milestone)
	for _, m := range msRows {
		milestonesByProgram[m.ProgramID] = append(milestonesByProgram[m.ProgramID], milestoneFromRow(m))
	}
	idsByProgram := make(map[string][]string)
	for _, mr := range mapRows {
		idsByProgram[mr.ProgramID] = append(idsByProgram[mr.ProgramID], mr.StrategicObjectiveID)
	}

	nameByID := make(map[string]string)
	if len(mapRows) > 0 {
		var objRows []objectiveRow
		if err := s.client.Select(ctx, "strategic_objectives", map[string]string{"select": "id,name", "organization_id": orgEq}, &objRows); err != nil {
			return nil, err
		}
		for _, o := range objRows {
			nameByID[o.ID] = o.Name
		}
	}

	programs := make([]models.Program, 0, len(progRows))
	for _, row := range progRows {
		ids := idsByProgram[row.ID]
		programs = append(programs, programFromRow(row, risksByProgram[row.ID], milestonesByProgram[row.ID], ids, resolveNames(ids, nameByID)))
	}
	return programs, nil
}

// GetProgram returns one program by id with nested collections, or
// ErrNotFound.
func (s *EntityStore) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	var progRows []programRow
	if err := s.client.Select(ctx, "programs", map[string]string{"select": "*", "id": eq(id), "organization_id": eq(s.orgID)}, &progRows); err != nil {
		return nil, err
	}
	if len(progRows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := progRows[0]

	var riskRows []riskRow
	if err := s.client.Select(ctx, "risks", map[string]string{"select": "*", "program_id": eq(id)}, &riskRows); err != nil {
		return nil, err
	}
	risks := make([]models.Risk, 0, len(riskRows))
	for _, r := range riskRows {
		risks = append(risks, riskFromRow(r))
	}

	var msRows []milestoneRow
	if err := s.client.Select(ctx, "milestones", map[string]string{"select": "*", "program_id": eq(id)}, &msRows); err != nil {
		return nil, err
	}
	milestones := make([]models.Milestone, 0, len(msRows))
	for _, m := range msRows {
		milestones = append(milestones, milestoneFromRow(m))
	}

	var mapRows []objectiveMapRow
	if err := s.client.Select(ctx, "program_strategic_objectives", map[string]string{"select": "strategic_objective_id", "program_id": eq(id)}, &mapRows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(mapRows))
	for _, mr := range mapRows {
		ids = append(ids, mr.StrategicObjectiveID)
	}

	var names []string
	if len(ids) > 0 {
		var objRows []objectiveRow
		if err := s.client.Select(ctx, "strategic_objectives", map[string]string{"select": "id,name", "organization_id": eq(s.orgID)}, &objRows); err != nil {
			return nil, err
		}
		nameByID := make(map[string]string, len(objRows))
		for _, o := range objRows {
			nameByID[o.ID] = o.Name
		}
		names = resolveNames(ids, nameByID)
	}

	p := programFromRow(row, risks, milestones, ids, names)
	return &p, nil
}

// CreateProgram inserts a program, links its strategic objectives, and
// returns the stored row with nested collections.
func (s *EntityStore) CreateProgram(ctx context.Context, p *models.Program) (*models.Program, error) {
	status := p.Status
	if status == "" {
		status = models.StatusOnTrack
	}
	row := map[string]interface{}{
		"organization_id": s.orgID,
		"name":            p.Name,
		"description":     p.Description,
		"status":          status,
		"owner":           p.Owner,
		"team":            p.Team,
		"product_line":    p.ProductLine,
		"pipeline_stage":  nullable(p.PipelineStage),
		"launch_date":     nullable(p.LaunchDate),
		"progress":        p.Progress,
		"last_update":     nullable(p.LastUpdate),
	}
	if p.ExternalID != "" {
		row["external_id"] = p.ExternalID
		row["sync_source"] = p.SyncSource
	}

	var created []programRow
	if err := s.client.Insert(ctx, "programs", row, &created); err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create program: empty representation")
	}
	id := created[0].ID

	if err := s.insertObjectiveMappings(ctx, id, p.StrategicObjectiveIDs); err != nil {
		return nil, err
	}

	s.logger.Info().Str("program_id", id).Msg("Created program")
	return s.GetProgram(ctx, id)
}

// UpdateProgram applies a partial update and returns the stored row. The
// strategic_objective_ids key is routed to the join table; all other keys
// PATCH program columns directly.
func (s *EntityStore) UpdateProgram(ctx context.Context, id string, fields map[string]interface{}) (*models.Program, error) {
	update := make(map[string]interface{}, len(fields))
	var objectiveIDs []string
	setObjectives := false
	for k, v := range fields {
		if k == "strategic_objective_ids" {
			setObjectives = true
			objectiveIDs = toStringSlice(v)
			continue
		}
		update[k] = normalizeColumn(k, v)
	}

	if len(update) > 0 {
		if err := s.client.Update(ctx, "programs", update, map[string]string{"id": eq(id), "organization_id": eq(s.orgID)}, nil); err != nil {
			return nil, err
		}
	}
	if setObjectives {
		if err := s.setObjectiveMappings(ctx, id, objectiveIDs); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("program_id", id).Msg("Updated program")
	return s.GetProgram(ctx, id)
}

// DeleteProgram removes a program. FK cascade handles risks, milestones, and
// objective mappings.
func (s *EntityStore) DeleteProgram(ctx context.Context, id string) error {
	var deleted []programRow
	if err := s.client.Delete(ctx, "programs", map[string]string{"id": eq(id), "organization_id": eq(s.orgID)}, &deleted); err != nil {
		return err
	}
	if len(deleted) == 0 {
		return interfaces.ErrNotFound
	}
	s.logger.Info().Str("program_id", id).Msg("Deleted program")
	return nil
}

// FindProgramByExternalID looks up a synced program by tracker identity.
// Only the bare program row is returned; nested collections are not loaded.
func (s *EntityStore) FindProgramByExternalID(ctx context.Context, externalID, syncSource string) (*models.Program, error) {
	var rows []programRow
	params := map[string]string{
		"select":          "*",
		"organization_id": eq(s.orgID),
		"external_id":     eq(externalID),
		"sync_source":     eq(syncSource),
	}
	if err := s.client.Select(ctx, "programs", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	p := programFromRow(rows[0], nil, nil, nil, nil)
	return &p, nil
}

// CreateRisk inserts a risk for a program.
func (s *EntityStore) CreateRisk(ctx context.Context, r *models.Risk) (*models.Risk, error) {
	status := r.Status
	if status == "" {
		status = models.RiskStatusOpen
	}
	row := map[string]interface{}{
		"organization_id": s.orgID,
		"program_id":      r.ProgramID,
		"title":           r.Title,
		"severity":        r.Severity,
		"description":     r.Description,
		"mitigation":      r.Mitigation,
		"status":          status,
	}

	var created []riskRow
	if err := s.client.Insert(ctx, "risks", row, &created); err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create risk: empty representation")
	}
	stored := riskFromRow(created[0])
	s.logger.Info().Str("risk_id", stored.ID).Str("program_id", stored.ProgramID).Msg("Created risk")
	return &stored, nil
}

// UpdateRisk applies a partial update by risk id.
func (s *EntityStore) UpdateRisk(ctx context.Context, id string, fields map[string]interface{}) (*models.Risk, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("update risk %s: no fields", id)
	}
	var rows []riskRow
	if err := s.client.Update(ctx, "risks", normalizeFields(fields), map[string]string{"id": eq(id)}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	stored := riskFromRow(rows[0])
	s.logger.Info().Str("risk_id", id).Msg("Updated risk")
	return &stored, nil
}

// DeleteRisk removes a risk by id.
func (s *EntityStore) DeleteRisk(ctx context.Context, id string) error {
	var deleted []riskRow
	if err := s.client.Delete(ctx, "risks", map[string]string{"id": eq(id)}, &deleted); err != nil {
		return err
	}
	if len(deleted) == 0 {
		return interfaces.ErrNotFound
	}
	s.logger.Info().Str("risk_id", id).Msg("Deleted risk")
	return nil
}

// CreateMilestone inserts a milestone for a program.
func (s *EntityStore) CreateMilestone(ctx context.Context, m *models.Milestone) (*models.Milestone, error) {
	status := m.Status
	if status == "" {
		status = models.MilestoneStatusUpcoming
	}
	row := map[string]interface{}{
		"organization_id": s.orgID,
		"program_id":      m.ProgramID,
		"name":            m.Name,
		"due_date":        nullable(m.DueDate),
		"completed_date":  nullable(m.CompletedDate),
		"status":          status,
	}
	if m.ExternalID != "" {
		row["external_id"] = m.ExternalID
		row["sync_source"] = m.SyncSource
	}

	var created []milestoneRow
	if err := s.client.Insert(ctx, "milestones", row, &created); err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create milestone: empty representation")
	}
	stored := milestoneFromRow(created[0])
	s.logger.Info().Str("milestone_id", stored.ID).Str("program_id", stored.ProgramID).Msg("Created milestone")
	return &stored, nil
}

// UpdateMilestone applies a partial update by milestone id.
func (s *EntityStore) UpdateMilestone(ctx context.Context, id string, fields map[string]interface{}) (*models.Milestone, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("update milestone %s: no fields", id)
	}
	var rows []milestoneRow
	if err := s.client.Update(ctx, "milestones", normalizeFields(fields), map[string]string{"id": eq(id)}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	stored := milestoneFromRow(rows[0])
	s.logger.Info().Str("milestone_id", id).Msg("Updated milestone")
	return &stored, nil
}

// DeleteMilestone removes a milestone by id.
func (s *EntityStore) DeleteMilestone(ctx context.Context, id string) error {
	var deleted []milestoneRow
	if err := s.client.Delete(ctx, "milestones", map[string]string{"id": eq(id)}, &deleted); err != nil {
		return err
	}
	if len(deleted) == 0 {
		return interfaces.ErrNotFound
	}
	s.logger.Info().Str("milestone_id", id).Msg("Deleted milestone")
	return nil
}

// FindMilestoneByExternalID looks up a synced milestone by tracker identity.
func (s *EntityStore) FindMilestoneByExternalID(ctx context.Context, externalID, syncSource string) (*models.Milestone, error) {
	var rows []milestoneRow
	params := map[string]string{
		"select":          "*",
		"organization_id": eq(s.orgID),
		"external_id":     eq(externalID),
		"sync_source":     eq(syncSource),
	}
	if err := s.client.Select(ctx, "milestones", params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	stored := milestoneFromRow(rows[0])
	return &stored, nil
}

// ListStrategicObjectives returns the objective catalog ordered by priority
// then name.
func (s *EntityStore) ListStrategicObjectives(ctx context.Context) ([]models.StrategicObjective, error) {
	var rows []objectiveRow
	params := map[string]string{
		"select":          "*",
		"organization_id": eq(s.orgID),
		"order":           "priority.asc,name.asc",
	}
	if err := s.client.Select(ctx, "strategic_objectives", params, &rows); err != nil {
		return nil, err
	}
	objectives := make([]models.StrategicObjective, 0, len(rows))
	for _, row := range rows {
		objectives = append(objectives, objectiveFromRow(row))
	}
	return objectives, nil
}

// CreateStrategicObjective inserts an objective and returns the stored row.
func (s *EntityStore) CreateStrategicObjective(ctx context.Context, o *models.StrategicObjective) (*models.StrategicObjective, error) {
	priority := o.Priority
	if priority == 0 {
		priority = 1
	}
	row := map[string]interface{}{
		"organization_id": s.orgID,
		"name":            o.Name,
		"description":     o.Description,
		"priority":        priority,
		"owner":           o.Owner,
	}

	var created []objectiveRow
	if err := s.client.Insert(ctx, "strategic_objectives", row, &created); err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create strategic objective: empty representation")
	}
	stored := objectiveFromRow(created[0])
	s.logger.Info().Str("objective_id", stored.ID).Msg("Created strategic objective")
	return &stored, nil
}

func (s *EntityStore) insertObjectiveMappings(ctx context.Context, programID string, objectiveIDs []string) error {
	if len(objectiveIDs) == 0 {
		return nil
	}
	mappings := make([]map[string]string, 0, len(objectiveIDs))
	for _, oid := range objectiveIDs {
		mappings = append(mappings, map[string]string{
			"program_id":             programID,
			"strategic_objective_id": oid,
		})
	}
	return s.client.Insert(ctx, "program_strategic_objectives", mappings, nil)
}

func (s *EntityStore) setObjectiveMappings(ctx context.Context, programID string, objectiveIDs []string) error {
	if err := s.client.Delete(ctx, "program_strategic_objectives", map[string]string{"program_id": eq(programID)}, nil); err != nil {
		return err
	}
	return s.insertObjectiveMappings(ctx, programID, objectiveIDs)
}

// Collections always marshal as [] rather than null in API responses.
func programFromRow(row programRow, risks []models.Risk, milestones []models.Milestone, objectiveIDs, objectiveNames []string) models.Program {
	if risks == nil {
		risks = []models.Risk{}
	}
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	if objectiveIDs == nil {
		objectiveIDs = []string{}
	}
	if objectiveNames == nil {
		objectiveNames = []string{}
	}
	return models.Program{
		ID:                    row.ID,
		Name:                  row.Name,
		Description:           row.Description,
		Status:                row.Status,
		Owner:                 row.Owner,
		Team:                  row.Team,
		ProductLine:           row.ProductLine,
		PipelineStage:         row.PipelineStage,
		StrategicObjectiveIDs: objectiveIDs,
		StrategicObjectives:   objectiveNames,
		LaunchDate:            row.LaunchDate,
		Progress:              row.Progress,
		Risks:                 risks,
		Milestones:            milestones,
		LastUpdate:            row.LastUpdate,
		ExternalID:            row.ExternalID,
		SyncSource:            row.SyncSource,
	}
}

func riskFromRow(row riskRow) models.Risk {
	status := row.Status
	if status == "" {
		status = models.RiskStatusOpen
	}
	return models.Risk{
		ID:          row.ID,
		ProgramID:   row.ProgramID,
		Title:       row.Title,
		Severity:    row.Severity,
		Description: row.Description,
		Mitigation:  row.Mitigation,
		Status:      status,
	}
}

func milestoneFromRow(row milestoneRow) models.Milestone {
	status := row.Status
	if status == "" {
		status = models.MilestoneStatusUpcoming
	}
	return models.Milestone{
		ID:            row.ID,
		ProgramID:     row.ProgramID,
		Name:          row.Name,
		DueDate:       row.DueDate,
		CompletedDate: row.CompletedDate,
		Status:        status,
		ExternalID:    row.ExternalID,
		SyncSource:    row.SyncSource,
	}
}

func objectiveFromRow(row objectiveRow) models.StrategicObjective {
	return models.StrategicObjective{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Priority:    row.Priority,
		Owner:       row.Owner,
	}
}

// resolveNames maps objective ids to names, silently dropping ids with no
// catalog entry.
func resolveNames(ids []string, nameByID map[string]string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := nameByID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// nullable maps an empty string to JSON null for date and nullable text
// columns where an empty literal would be rejected.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func normalizeFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = normalizeColumn(k, v)
	}
	return out
}

func normalizeColumn(column string, v interface{}) interface{} {
	switch column {
	case "launch_date", "last_update", "due_date", "completed_date", "pipeline_stage":
		if s, ok := v.(string); ok && s == "" {
			return nil
		}
	}
	return v
}

func toStringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
