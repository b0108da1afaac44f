// Package scheduler wires up the cron job that periodically backfills job
// postings for all active search configs.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/backfill"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// ConfigSource lists the search configs to sweep.
type ConfigSource interface {
	ListActiveSearchConfigs(ctx context.Context) ([]*model.SearchConfig, error)
}

// Scheduler wraps robfig/cron and manages the backfill loop.
type Scheduler struct {
	cron    *cron.Cron
	configs ConfigSource
	ledger  *backfill.Ledger
	spec    string // cron spec, e.g. "@every 12h"
	logger  *zap.Logger
}

// New creates a Scheduler that fires every intervalHours hours.
func New(configs ConfigSource, ledger *backfill.Ledger, intervalHours int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		configs: configs,
		ledger:  ledger,
		spec:    fmt.Sprintf("@every %dh", intervalHours),
		logger:  logger,
	}
}

// Start registers the job and starts the scheduler. Also runs one sweep
// immediately so new deployments have postings without waiting for the
// first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("backfill cron started", zap.String("spec", s.spec))

	go s.runSweep(ctx)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("backfill cron stopped")
}

// runSweep expands every active search config into combinations and hands
// them to the ledger. The combined set is deduplicated inside the ledger,
// so overlapping users cost nothing extra.
func (s *Scheduler) runSweep(ctx context.Context) {
	configs, err := s.configs.ListActiveSearchConfigs(ctx)
	if err != nil {
		s.logger.Error("loading search configs failed", zap.Error(err))
		return
	}
	if len(configs) == 0 {
		s.logger.Info("no active search configs, nothing to backfill")
		return
	}

	var combos []model.BackfillCombination
	for _, cfg := range configs {
		combos = append(combos, cfg.Combinations()...)
	}

	stats, err := s.ledger.Run(ctx, combos)
	if err != nil {
		s.logger.Error("backfill sweep failed", zap.Error(err))
		return
	}

	s.logger.Info("backfill sweep complete",
		zap.Int("configs", len(configs)),
		zap.Int("combinations", stats.Requested),
		zap.Int("fetched", stats.Fetched),
		zap.Int("inserted", stats.Inserted),
	)
}
