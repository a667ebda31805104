package sync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// syncTimeout bounds one full tracker pull and reconcile.
const syncTimeout = 10 * time.Minute

// Scheduler runs tracker syncs on a cron schedule. The run itself records
// failures in the run store, so a failed tick is logged and left for the
// next one.
type Scheduler struct {
	service interfaces.SyncService
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewScheduler creates a sync scheduler.
func NewScheduler(service interfaces.SyncService, logger arbor.ILogger) *Scheduler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Scheduler{
		service: service,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start begins the scheduled syncs.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		// Default: every 6 hours
		schedule = "0 */6 * * *"
	}

	_, err := s.cron.AddFunc(schedule, s.runSync)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Tracker sync scheduler started")

	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Tracker sync scheduler stopped")
}

func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if _, err := s.service.Run(ctx, models.SyncTriggerSchedule); err != nil {
		s.logger.Error().
			Err(err).
			Msg("Scheduled tracker sync failed")
	}
}
