// Package scheduler triggers periodic ingestion runs on a cron interval.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/interfaces"
)

// Service starts an ingestion run every configured interval. A tick that
// lands while a run is still active is a no-op; the scraper's single-run
// rule does the arbitration.
type Service struct {
	config  *common.SchedulerConfig
	scraper interfaces.ScraperService
	logger  arbor.ILogger
	cron    *cron.Cron
}

// NewService creates the scheduler service
func NewService(config *common.SchedulerConfig, scraper interfaces.ScraperService, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		scraper: scraper,
		logger:  logger,
	}
}

// Start registers the periodic job and starts the cron loop. Disabled
// schedulers start nothing.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %dh", s.config.IntervalHours)
	if _, err := s.cron.AddFunc(spec, s.runScheduled); err != nil {
		return fmt.Errorf("failed to register scheduled run: %w", err)
	}
	s.cron.Start()

	s.logger.Info().Int("interval_hours", s.config.IntervalHours).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for any in-flight trigger callback
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) runScheduled() {
	result := s.scraper.StartRun(context.Background(), nil)
	if !result.Accepted {
		s.logger.Info().Str("reason", result.Reason).Msg("Scheduled run skipped")
		return
	}
	s.logger.Info().Str("batch_id", result.BatchID).Msg("Scheduled run started")
}
