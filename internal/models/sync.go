package models

import "time"

// Sync source identifiers recorded on imported programs.
const (
	SyncSourceLinear = "linear"
)

// Sync run outcomes.
const (
	SyncRunStatusRunning   = "running"
	SyncRunStatusCompleted = "completed"
	SyncRunStatusFailed    = "failed"
)

// TrackerProject is a normalized project pulled from an external tracker,
// before mapping into a Program. Adapters resolve tracker-specific shapes
// (label groups, update feeds) into these fields; State and Health keep the
// tracker's own vocabulary for the engine's mapping tables.
type TrackerProject struct {
	ExternalID  string
	Name        string
	Description string
	State       string
	Health      string
	Lead        string
	Teams       []string
	ProductLine string
	TargetDate  string
	Progress    float64 // 0..1
	LastUpdate  string
	UpdatedAt   time.Time
	Milestones  []TrackerMilestone
}

// TrackerMilestone is a normalized milestone belonging to a tracker project.
type TrackerMilestone struct {
	ExternalID string
	Name       string
	TargetDate string
	Completed  bool
}

// Sync run triggers.
const (
	SyncTriggerManual   = "manual"
	SyncTriggerSchedule = "schedule"
)

// SyncRun records one execution of the tracker sync engine. Stored locally
// so operators can inspect recent runs without tracker access.
type SyncRun struct {
	ID          string    `badgerhold:"key"`
	Source      string    `badgerholdIndex:"Source"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	ProjectsIn  int       `json:"projects_in"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Skipped     int       `json:"skipped"`
	Milestones  int       `json:"milestones"`
	Error       string    `json:"error,omitempty"`
	TriggeredBy string    `json:"triggered_by"`
}
