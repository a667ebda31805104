package notify

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
)

// briefingTimeout bounds one briefing generation plus delivery.
const briefingTimeout = 5 * time.Minute

// Scheduler posts the portfolio briefing on a cron schedule. Delivery is
// best-effort: a failed run is logged and the next tick tries again.
type Scheduler struct {
	query    interfaces.QueryService
	notifier interfaces.Notifier
	cron     *cron.Cron
	logger   arbor.ILogger
}

// NewScheduler creates a briefing scheduler.
func NewScheduler(query interfaces.QueryService, notifier interfaces.Notifier, logger arbor.ILogger) *Scheduler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Scheduler{
		query:    query,
		notifier: notifier,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start begins the scheduled briefings.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		// Default: Monday morning
		schedule = "0 9 * * MON"
	}

	_, err := s.cron.AddFunc(schedule, s.runBriefing)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Briefing scheduler started")

	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Briefing scheduler stopped")
}

// RunNow triggers an immediate briefing.
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate briefing")
	go s.runBriefing()
}

func (s *Scheduler) runBriefing() {
	ctx, cancel := context.WithTimeout(context.Background(), briefingTimeout)
	defer cancel()

	s.logger.Info().Msg("Generating scheduled portfolio briefing")

	briefing, err := s.query.GeneratePortfolioSummary(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Scheduled briefing generation failed")
		return
	}

	if err := s.notifier.SendBriefing(ctx, briefing); err != nil {
		s.logger.Error().
			Err(err).
			Msg("Scheduled briefing delivery failed")
		return
	}

	s.logger.Info().
		Str("confidence", briefing.Confidence).
		Msg("Scheduled briefing posted")
}
