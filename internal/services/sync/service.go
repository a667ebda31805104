package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// Tracker lifecycle status to pipeline stage. Unknown statuses land in
// Discovery.
var pipelineStageByState = map[string]string{
	"Backlog":     models.StageDiscovery,
	"Discovery":   models.StageDiscovery,
	"Planning":    models.StagePlanning,
	"In Progress": models.StageInProgress,
	"Completed":   models.StageCompleted,
}

// Tracker update health to program status.
var statusByHealth = map[string]string{
	"onTrack":  models.StatusOnTrack,
	"atRisk":   models.StatusAtRisk,
	"offTrack": models.StatusOffTrack,
}

// Tracker statuses whose projects are not imported.
var skipStates = map[string]bool{
	"Canceled": true,
}

// Service implements the SyncService interface. Each run pulls every project
// from the tracker, reconciles programs and milestones by (external_id,
// sync_source), and records the outcome in the local run store.
type Service struct {
	adapter  interfaces.TrackerAdapter
	entities interfaces.EntityStore
	runs     interfaces.SyncRunStore
	logger   arbor.ILogger
	now      func() time.Time
}

// NewService creates a new sync engine.
func NewService(adapter interfaces.TrackerAdapter, entities interfaces.EntityStore, runs interfaces.SyncRunStore, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Service{
		adapter:  adapter,
		entities: entities,
		runs:     runs,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes a full sync pass. A failed program or milestone write aborts
// the run; the next scheduled pass picks up where the tracker state stands.
func (s *Service) Run(ctx context.Context, trigger string) (models.SyncRun, error) {
	run := models.SyncRun{
		ID:          uuid.New().String(),
		Source:      s.adapter.Source(),
		Status:      models.SyncRunStatusRunning,
		StartedAt:   s.now().UTC(),
		TriggeredBy: trigger,
	}
	s.saveRun(&run)

	s.logger.Info().Str("source", run.Source).Str("trigger", trigger).Msg("Starting tracker sync")

	projects, err := s.adapter.FetchProjects(ctx)
	if err != nil {
		return s.fail(run, fmt.Errorf("fetch projects: %w", err))
	}
	run.ProjectsIn = len(projects)

	for _, project := range projects {
		if skipStates[project.State] {
			s.logger.Info().Str("project", project.Name).Msg("Skipping canceled project")
			run.Skipped++
			continue
		}

		programID, created, err := s.upsertProgram(ctx, project)
		if err != nil {
			return s.fail(run, fmt.Errorf("upsert program %s: %w", project.Name, err))
		}
		if created {
			run.Created++
		} else {
			run.Updated++
		}

		for _, ms := range project.Milestones {
			if err := s.upsertMilestone(ctx, programID, ms); err != nil {
				return s.fail(run, fmt.Errorf("upsert milestone %s: %w", ms.Name, err))
			}
			run.Milestones++
		}
	}

	run.Status = models.SyncRunStatusCompleted
	run.FinishedAt = s.now().UTC()
	s.saveRun(&run)

	s.logger.Info().
		Int("projects", run.ProjectsIn).
		Int("created", run.Created).
		Int("updated", run.Updated).
		Int("skipped", run.Skipped).
		Int("milestones", run.Milestones).
		Msg("Tracker sync complete")
	return run, nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.runs.RecentRuns(limit)
}

func (s *Service) upsertProgram(ctx context.Context, project models.TrackerProject) (string, bool, error) {
	source := s.adapter.Source()

	existing, err := s.entities.FindProgramByExternalID(ctx, project.ExternalID, source)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return "", false, err
	}
	if existing != nil {
		if _, err := s.entities.UpdateProgram(ctx, existing.ID, programFields(project, source)); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}

	created, err := s.entities.CreateProgram(ctx, programFromTracker(project, source))
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

func (s *Service) upsertMilestone(ctx context.Context, programID string, ms models.TrackerMilestone) error {
	source := s.adapter.Source()
	status := models.MilestoneStatusUpcoming
	if ms.Completed {
		status = models.MilestoneStatusCompleted
	}

	existing, err := s.entities.FindMilestoneByExternalID(ctx, ms.ExternalID, source)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return err
	}
	if existing != nil {
		// Program assignment is never rewritten on update.
		_, err := s.entities.UpdateMilestone(ctx, existing.ID, map[string]interface{}{
			"name":        ms.Name,
			"due_date":    ms.TargetDate,
			"status":      status,
			"external_id": ms.ExternalID,
			"sync_source": source,
		})
		return err
	}

	_, err = s.entities.CreateMilestone(ctx, &models.Milestone{
		ProgramID:  programID,
		Name:       ms.Name,
		DueDate:    ms.TargetDate,
		Status:     status,
		ExternalID: ms.ExternalID,
		SyncSource: source,
	})
	return err
}

func (s *Service) fail(run models.SyncRun, err error) (models.SyncRun, error) {
	run.Status = models.SyncRunStatusFailed
	run.Error = err.Error()
	run.FinishedAt = s.now().UTC()
	s.saveRun(&run)
	s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Tracker sync failed")
	return run, err
}

func (s *Service) saveRun(run *models.SyncRun) {
	if err := s.runs.SaveRun(run); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record sync run")
	}
}

// programFields builds the update payload for an existing synced program.
// Strategic objective links are left alone so manual mappings survive sync.
func programFields(p models.TrackerProject, source string) map[string]interface{} {
	return map[string]interface{}{
		"name":           p.Name,
		"description":    p.Description,
		"status":         deriveStatus(p),
		"owner":          p.Lead,
		"team":           strings.Join(p.Teams, ", "),
		"product_line":   p.ProductLine,
		"pipeline_stage": pipelineStage(p.State),
		"launch_date":    p.TargetDate,
		"progress":       progressPercent(p.Progress),
		"last_update":    p.LastUpdate,
		"external_id":    p.ExternalID,
		"sync_source":    source,
	}
}

func programFromTracker(p models.TrackerProject, source string) *models.Program {
	return &models.Program{
		Name:          p.Name,
		Description:   p.Description,
		Status:        deriveStatus(p),
		Owner:         p.Lead,
		Team:          strings.Join(p.Teams, ", "),
		ProductLine:   p.ProductLine,
		PipelineStage: pipelineStage(p.State),
		LaunchDate:    p.TargetDate,
		Progress:      progressPercent(p.Progress),
		LastUpdate:    p.LastUpdate,
		ExternalID:    p.ExternalID,
		SyncSource:    source,
	}
}

func pipelineStage(state string) string {
	if stage, ok := pipelineStageByState[state]; ok {
		return stage
	}
	return models.StageDiscovery
}

// deriveStatus prefers the tracker lifecycle for completed projects; active
// projects report the health of their latest update, defaulting to On Track
// when no update exists.
func deriveStatus(p models.TrackerProject) string {
	if p.State == "Completed" {
		return models.StatusCompleted
	}
	if status, ok := statusByHealth[p.Health]; ok {
		return status
	}
	return models.StatusOnTrack
}

func progressPercent(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction >= 1 {
		return 100
	}
	return int(math.Round(fraction * 100))
}
