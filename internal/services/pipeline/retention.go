package pipeline

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
)

const vacuumBudget = 5 * time.Minute

// RetentionService deletes parsed raw documents past their keep window on a
// cron schedule. Events and vectors are never touched.
type RetentionService struct {
	warehouse interfaces.Warehouse
	config    common.RetentionConfig
	logger    arbor.ILogger
	cron      *cron.Cron
	entryID   cron.EntryID
}

func NewRetentionService(warehouse interfaces.Warehouse, config common.RetentionConfig, logger arbor.ILogger) *RetentionService {
	if config.Schedule == "" {
		config.Schedule = "0 3 * * *"
	}
	if config.KeepDays <= 0 {
		config.KeepDays = 90
	}
	return &RetentionService{
		warehouse: warehouse,
		config:    config,
		logger:    logger,
	}
}

// Start registers the vacuum job and starts the scheduler. A disabled
// configuration is a no-op so callers can Start unconditionally.
func (s *RetentionService) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Retention vacuum disabled")
		return nil
	}

	s.cron = cron.New()
	entryID, err := s.cron.AddFunc(s.config.Schedule, s.runOnce)
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Int("keep_days", s.config.KeepDays).
		Msg("Retention vacuum scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running vacuum to finish.
func (s *RetentionService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Vacuum deletes parsed raw docs fetched more than KeepDays ago.
func (s *RetentionService) Vacuum(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.config.KeepDays)
	return s.warehouse.VacuumParsedRawDocs(ctx, cutoff)
}

func (s *RetentionService) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), vacuumBudget)
	defer cancel()

	deleted, err := s.Vacuum(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Retention vacuum failed")
		return
	}
	s.logger.Info().Int64("deleted", deleted).Msg("Retention vacuum completed")
}
