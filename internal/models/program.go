package models

// Program status values as stored in the portfolio database.
const (
	StatusOnTrack   = "On Track"
	StatusAtRisk    = "At Risk"
	StatusOffTrack  = "Off Track"
	StatusCompleted = "Completed"
)

// Pipeline stage values.
const (
	StageDiscovery  = "Discovery"
	StagePlanning   = "Planning"
	StageInProgress = "In Progress"
	StageLaunching  = "Launching"
	StageCompleted  = "Completed"
)

// Risk severity values.
const (
	SeverityHigh   = "High"
	SeverityMedium = "Medium"
	SeverityLow    = "Low"
)

// Risk status values.
const (
	RiskStatusOpen      = "Open"
	RiskStatusMitigated = "Mitigated"
	RiskStatusClosed    = "Closed"
)

// Milestone status values.
const (
	MilestoneStatusUpcoming  = "Upcoming"
	MilestoneStatusCompleted = "Completed"
	MilestoneStatusOverdue   = "Overdue"
)

// ProductLines lists the product lines recognized by structured retrieval,
// in display form. Keyword matching lowercases these.
var ProductLines = []string{"Smart Home", "Mobile", "Platform", "Video"}

// Risk represents a tracked risk against a program.
type Risk struct {
	ID          string `json:"id"`
	ProgramID   string `json:"program_id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
	Status      string `json:"status"`
}

// Milestone represents a dated delivery checkpoint for a program.
type Milestone struct {
	ID            string `json:"id"`
	ProgramID     string `json:"program_id"`
	Name          string `json:"name"`
	DueDate       string `json:"due_date"`
	CompletedDate string `json:"completed_date,omitempty"`
	Status        string `json:"status"`

	// Set only on milestones imported from an external tracker.
	ExternalID string `json:"external_id,omitempty"`
	SyncSource string `json:"sync_source,omitempty"`
}

// StrategicObjective is a named portfolio-level goal that programs map to.
type StrategicObjective struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Owner       string `json:"owner,omitempty"`
}

// Program is the primary portfolio entity. Instances are snapshots owned by
// the external store of record; the query pipeline only reads them.
// Risks and Milestones are nested by the entity store's list operation.
// StrategicObjectiveIDs carries the join-table ids and StrategicObjectives
// the resolved objective names; retrieval renders the names.
type Program struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	Description           string      `json:"description"`
	Status                string      `json:"status"`
	Owner                 string      `json:"owner"`
	Team                  string      `json:"team"`
	ProductLine           string      `json:"product_line"`
	PipelineStage         string      `json:"pipeline_stage"`
	StrategicObjectiveIDs []string    `json:"strategic_objective_ids"`
	StrategicObjectives   []string    `json:"strategic_objectives"`
	LaunchDate            string      `json:"launch_date"`
	Progress              int         `json:"progress"`
	Risks                 []Risk      `json:"risks"`
	Milestones            []Milestone `json:"milestones"`
	LastUpdate            string      `json:"last_update"`

	// Set only on programs imported from an external tracker. The sync
	// engine upserts by (ExternalID, SyncSource).
	ExternalID string `json:"external_id,omitempty"`
	SyncSource string `json:"sync_source,omitempty"`
}

// SeverityRank orders risk severities for sorting. High sorts before Medium,
// Medium before Low, and unrecognized severities last.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	default:
		return 3
	}
}
