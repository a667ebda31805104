package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/conspectus/internal/models"
)

// ErrNotFound is returned by store lookups when no row matches.
var ErrNotFound = errors.New("not found")

// EntityStore is the portfolio store of record, reached over a REST data
// API. List and Get return Programs with risks, milestones, and resolved
// strategic-objective names nested; the query pipeline treats these as
// immutable snapshots.
type EntityStore interface {
	// ListPrograms returns all programs for the configured organization.
	ListPrograms(ctx context.Context) ([]models.Program, error)

	// GetProgram returns one program by id, or ErrNotFound.
	GetProgram(ctx context.Context, id string) (*models.Program, error)

	// CreateProgram inserts a program and returns the stored row.
	CreateProgram(ctx context.Context, p *models.Program) (*models.Program, error)

	// UpdateProgram applies a partial update and returns the stored row.
	UpdateProgram(ctx context.Context, id string, fields map[string]interface{}) (*models.Program, error)

	// DeleteProgram removes a program and its nested rows.
	DeleteProgram(ctx context.Context, id string) error

	// FindProgramByExternalID looks up a synced program by its tracker
	// identity, or ErrNotFound.
	FindProgramByExternalID(ctx context.Context, externalID, syncSource string) (*models.Program, error)

	// Risk and milestone child rows.
	CreateRisk(ctx context.Context, r *models.Risk) (*models.Risk, error)
	UpdateRisk(ctx context.Context, id string, fields map[string]interface{}) (*models.Risk, error)
	DeleteRisk(ctx context.Context, id string) error
	CreateMilestone(ctx context.Context, m *models.Milestone) (*models.Milestone, error)
	UpdateMilestone(ctx context.Context, id string, fields map[string]interface{}) (*models.Milestone, error)
	DeleteMilestone(ctx context.Context, id string) error

	// FindMilestoneByExternalID looks up a synced milestone by its tracker
	// identity, or ErrNotFound.
	FindMilestoneByExternalID(ctx context.Context, externalID, syncSource string) (*models.Milestone, error)

	// ListStrategicObjectives returns the organization's objective catalog,
	// ordered by priority then name.
	ListStrategicObjectives(ctx context.Context) ([]models.StrategicObjective, error)

	// CreateStrategicObjective inserts an objective and returns the stored row.
	CreateStrategicObjective(ctx context.Context, o *models.StrategicObjective) (*models.StrategicObjective, error)
}
