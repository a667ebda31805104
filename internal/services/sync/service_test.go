package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

type fakeAdapter struct {
	projects []models.TrackerProject
	err      error
}

func (f *fakeAdapter) FetchProjects(ctx context.Context) ([]models.TrackerProject, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.projects, nil
}

func (f *fakeAdapter) Source() string { return models.SyncSourceLinear }

// fakeEntityStore covers the store methods the engine reaches for. Anything
// else panics through the embedded nil interface, which would flag an
// unexpected call.
type fakeEntityStore struct {
	interfaces.EntityStore

	programsByExternalID   map[string]*models.Program
	milestonesByExternalID map[string]*models.Milestone

	createdPrograms   []*models.Program
	programUpdates    map[string]map[string]interface{}
	createdMilestones []*models.Milestone
	milestoneUpdates  map[string]map[string]interface{}

	createProgramErr error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		programsByExternalID:   map[string]*models.Program{},
		milestonesByExternalID: map[string]*models.Milestone{},
		programUpdates:         map[string]map[string]interface{}{},
		milestoneUpdates:       map[string]map[string]interface{}{},
	}
}

func (f *fakeEntityStore) FindProgramByExternalID(ctx context.Context, externalID, syncSource string) (*models.Program, error) {
	if p, ok := f.programsByExternalID[externalID]; ok {
		return p, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeEntityStore) CreateProgram(ctx context.Context, p *models.Program) (*models.Program, error) {
	if f.createProgramErr != nil {
		return nil, f.createProgramErr
	}
	stored := *p
	stored.ID = fmt.Sprintf("prog-%d", len(f.createdPrograms)+1)
	f.createdPrograms = append(f.createdPrograms, &stored)
	return &stored, nil
}

func (f *fakeEntityStore) UpdateProgram(ctx context.Context, id string, fields map[string]interface{}) (*models.Program, error) {
	f.programUpdates[id] = fields
	return &models.Program{ID: id}, nil
}

func (f *fakeEntityStore) FindMilestoneByExternalID(ctx context.Context, externalID, syncSource string) (*models.Milestone, error) {
	if m, ok := f.milestonesByExternalID[externalID]; ok {
		return m, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeEntityStore) CreateMilestone(ctx context.Context, m *models.Milestone) (*models.Milestone, error) {
	stored := *m
	stored.ID = fmt.Sprintf("ms-%d", len(f.createdMilestones)+1)
	f.createdMilestones = append(f.createdMilestones, &stored)
	return &stored, nil
}

func (f *fakeEntityStore) UpdateMilestone(ctx context.Context, id string, fields map[string]interface{}) (*models.Milestone, error) {
	f.milestoneUpdates[id] = fields
	return &models.Milestone{ID: id}, nil
}

type fakeRunStore struct {
	saved       []models.SyncRun
	recentLimit int
}

func (f *fakeRunStore) SaveRun(run *models.SyncRun) error {
	f.saved = append(f.saved, *run)
	return nil
}

func (f *fakeRunStore) RecentRuns(limit int) ([]models.SyncRun, error) {
	f.recentLimit = limit
	return f.saved, nil
}

func newTestService(adapter *fakeAdapter, entities *fakeEntityStore, runs *fakeRunStore) *Service {
	svc := NewService(adapter, entities, runs, arbor.NewLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestRun_CreatesProgramsAndMilestones(t *testing.T) {
	adapter := &fakeAdapter{projects: []models.TrackerProject{
		{
			ExternalID:  "lin-1",
			Name:        "Aurora Hub",
			Description: "Next-gen hub",
			State:       "In Progress",
			Health:      "atRisk",
			Lead:        "Jordan Lee",
			Teams:       []string{"Hub HW", "Hub FW"},
			ProductLine: "Smart Home",
			TargetDate:  "2026-09-01",
			Progress:    0.42,
			LastUpdate:  "Supply chain slipping.",
			Milestones: []models.TrackerMilestone{
				{ExternalID: "lin-ms-1", Name: "Field trial", TargetDate: "2026-08-30"},
				{ExternalID: "lin-ms-2", Name: "Design freeze", TargetDate: "2026-07-01", Completed: true},
			},
		},
		{ExternalID: "lin-2", Name: "Atlas Mobile", State: "Planning"},
	}}
	entities := newFakeEntityStore()
	runs := &fakeRunStore{}
	svc := newTestService(adapter, entities, runs)

	run, err := svc.Run(context.Background(), models.SyncTriggerManual)
	require.NoError(t, err)

	assert.Equal(t, models.SyncRunStatusCompleted, run.Status)
	assert.Equal(t, models.SyncSourceLinear, run.Source)
	assert.Equal(t, models.SyncTriggerManual, run.TriggeredBy)
	assert.Equal(t, 2, run.ProjectsIn)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 0, run.Updated)
	assert.Equal(t, 0, run.Skipped)
	assert.Equal(t, 2, run.Milestones)
	assert.False(t, run.FinishedAt.IsZero())

	require.Len(t, entities.createdPrograms, 2)
	created := entities.createdPrograms[0]
	assert.Equal(t, "Aurora Hub", created.Name)
	assert.Equal(t, models.StatusAtRisk, created.Status)
	assert.Equal(t, models.StageInProgress, created.PipelineStage)
	assert.Equal(t, "Jordan Lee", created.Owner)
	assert.Equal(t, "Hub HW, Hub FW", created.Team)
	assert.Equal(t, "Smart Home", created.ProductLine)
	assert.Equal(t, "2026-09-01", created.LaunchDate)
	assert.Equal(t, 42, created.Progress)
	assert.Equal(t, "Supply chain slipping.", created.LastUpdate)
	assert.Equal(t, "lin-1", created.ExternalID)
	assert.Equal(t, models.SyncSourceLinear, created.SyncSource)

	require.Len(t, entities.createdMilestones, 2)
	assert.Equal(t, "prog-1", entities.createdMilestones[0].ProgramID)
	assert.Equal(t, models.MilestoneStatusUpcoming, entities.createdMilestones[0].Status)
	assert.Equal(t, models.MilestoneStatusCompleted, entities.createdMilestones[1].Status)
	assert.Equal(t, models.SyncSourceLinear, entities.createdMilestones[0].SyncSource)

	// The store sees the running snapshot first, then the completed one.
	require.Len(t, runs.saved, 2)
	assert.Equal(t, models.SyncRunStatusRunning, runs.saved[0].Status)
	assert.Equal(t, models.SyncRunStatusCompleted, runs.saved[1].Status)
}

func TestRun_UpdatesExistingProgram(t *testing.T) {
	adapter := &fakeAdapter{projects: []models.TrackerProject{{
		ExternalID: "lin-1",
		Name:       "Aurora Hub",
		State:      "Completed",
		Health:     "offTrack",
		Progress:   1.0,
		TargetDate: "2026-09-01",
		Milestones: []models.TrackerMilestone{
			{ExternalID: "lin-ms-1", Name: "Field trial", TargetDate: "2026-08-30"},
		},
	}}}
	entities := newFakeEntityStore()
	entities.programsByExternalID["lin-1"] = &models.Program{ID: "prog-9", ExternalID: "lin-1"}
	entities.milestonesByExternalID["lin-ms-1"] = &models.Milestone{ID: "ms-9", ExternalID: "lin-ms-1"}
	runs := &fakeRunStore{}
	svc := newTestService(adapter, entities, runs)

	run, err := svc.Run(context.Background(), models.SyncTriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, 0, run.Created)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 1, run.Milestones)
	assert.Empty(t, entities.createdPrograms)
	assert.Empty(t, entities.createdMilestones)

	fields := entities.programUpdates["prog-9"]
	require.NotNil(t, fields)
	// Completed lifecycle wins over the update health.
	assert.Equal(t, models.StatusCompleted, fields["status"])
	assert.Equal(t, models.StageCompleted, fields["pipeline_stage"])
	assert.Equal(t, 100, fields["progress"])
	assert.Equal(t, "2026-09-01", fields["launch_date"])
	assert.Equal(t, models.SyncSourceLinear, fields["sync_source"])
	assert.NotContains(t, fields, "strategic_objective_ids")
	assert.NotContains(t, fields, "organization_id")

	msFields := entities.milestoneUpdates["ms-9"]
	require.NotNil(t, msFields)
	assert.Equal(t, "Field trial", msFields["name"])
	assert.Equal(t, "2026-08-30", msFields["due_date"])
	assert.Equal(t, models.MilestoneStatusUpcoming, msFields["status"])
	assert.NotContains(t, msFields, "program_id")
}

func TestRun_SkipsCanceledProjects(t *testing.T) {
	adapter := &fakeAdapter{projects: []models.TrackerProject{
		{ExternalID: "lin-1", Name: "Legacy Bridge", State: "Canceled"},
		{ExternalID: "lin-2", Name: "Atlas Mobile", State: "Planning"},
	}}
	entities := newFakeEntityStore()
	runs := &fakeRunStore{}
	svc := newTestService(adapter, entities, runs)

	run, err := svc.Run(context.Background(), models.SyncTriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, run.ProjectsIn)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.Created)
	require.Len(t, entities.createdPrograms, 1)
	assert.Equal(t, "Atlas Mobile", entities.createdPrograms[0].Name)
}

func TestRun_FetchFailureRecordsFailedRun(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("tracker unreachable")}
	runs := &fakeRunStore{}
	svc := newTestService(adapter, newFakeEntityStore(), runs)

	run, err := svc.Run(context.Background(), models.SyncTriggerSchedule)
	require.Error(t, err)
	assert.ErrorContains(t, err, "fetch projects")

	assert.Equal(t, models.SyncRunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "tracker unreachable")
	assert.False(t, run.FinishedAt.IsZero())
	require.Len(t, runs.saved, 2)
	assert.Equal(t, models.SyncRunStatusFailed, runs.saved[1].Status)
}

func TestRun_AbortsOnWriteFailure(t *testing.T) {
	adapter := &fakeAdapter{projects: []models.TrackerProject{
		{ExternalID: "lin-1", Name: "Aurora Hub", State: "In Progress"},
		{ExternalID: "lin-2", Name: "Atlas Mobile", State: "Planning"},
	}}
	entities := newFakeEntityStore()
	entities.programsByExternalID["lin-1"] = &models.Program{ID: "prog-9", ExternalID: "lin-1"}
	entities.createProgramErr = errors.New("insert denied")
	runs := &fakeRunStore{}
	svc := newTestService(adapter, entities, runs)

	run, err := svc.Run(context.Background(), models.SyncTriggerManual)
	require.Error(t, err)
	assert.ErrorContains(t, err, "upsert program Atlas Mobile")

	assert.Equal(t, models.SyncRunStatusFailed, run.Status)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 0, run.Created)
}

func TestRecentRuns_DefaultsLimit(t *testing.T) {
	runs := &fakeRunStore{}
	svc := newTestService(&fakeAdapter{}, newFakeEntityStore(), runs)

	_, err := svc.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 10, runs.recentLimit)

	_, err = svc.RecentRuns(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, runs.recentLimit)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name    string
		project models.TrackerProject
		want    string
	}{
		{
			name:    "completed lifecycle wins over health",
			project: models.TrackerProject{State: "Completed", Health: "offTrack"},
			want:    models.StatusCompleted,
		},
		{
			name:    "at risk health",
			project: models.TrackerProject{State: "In Progress", Health: "atRisk"},
			want:    models.StatusAtRisk,
		},
		{
			name:    "off track health",
			project: models.TrackerProject{State: "In Progress", Health: "offTrack"},
			want:    models.StatusOffTrack,
		},
		{
			name:    "on track health",
			project: models.TrackerProject{State: "Planning", Health: "onTrack"},
			want:    models.StatusOnTrack,
		},
		{
			name:    "no update defaults on track",
			project: models.TrackerProject{State: "Planning"},
			want:    models.StatusOnTrack,
		},
		{
			name:    "unknown health defaults on track",
			project: models.TrackerProject{State: "Planning", Health: "paused"},
			want:    models.StatusOnTrack,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveStatus(tt.project))
		})
	}
}

func TestPipelineStage(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"Backlog", models.StageDiscovery},
		{"Discovery", models.StageDiscovery},
		{"Planning", models.StagePlanning},
		{"In Progress", models.StageInProgress},
		{"Completed", models.StageCompleted},
		{"Paused", models.StageDiscovery},
		{"", models.StageDiscovery},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pipelineStage(tt.state), "state %q", tt.state)
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		fraction float64
		want     int
	}{
		{0, 0},
		{-0.5, 0},
		{0.333, 33},
		{0.42, 42},
		{0.5, 50},
		{1, 100},
		{1.2, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, progressPercent(tt.fraction), "fraction %v", tt.fraction)
	}
}
