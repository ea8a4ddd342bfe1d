package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"streakboard/internal/domain"
	"streakboard/internal/service"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context, trigger string) (*domain.SyncSummary, error)
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	_, err := s.syncer.Sync(syncCtx, domain.TriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrSyncInProgress):
		// Another run (likely a manual trigger) holds the lease.
		s.logger.Info("skipping scheduled sync", "reason", err)
	default:
		s.logger.Error("sync failed", "error", err)
	}
}
