package interfaces

import (
	"context"

	"github.com/ternarybob/conspectus/internal/models"
)

// TrackerAdapter pulls projects from an external delivery tracker.
// Implementations handle their own pagination and rate limiting.
type TrackerAdapter interface {
	// FetchProjects returns every active project visible to the
	// configured credentials.
	FetchProjects(ctx context.Context) ([]models.TrackerProject, error)

	// Source identifies the tracker for sync bookkeeping
	Source() string
}

// SyncService reconciles tracker projects into portfolio programs.
type SyncService interface {
	// Run executes a full sync pass and records the outcome. The trigger
	// ("manual" or "schedule") is stamped on the run record.
	Run(ctx context.Context, trigger string) (models.SyncRun, error)

	// RecentRuns returns the latest sync runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}
