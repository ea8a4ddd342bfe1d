package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"streakboard/internal/cache"
	"streakboard/internal/config"
	"streakboard/internal/domain"
	"streakboard/internal/source/devstats"
)

var (
	// ErrMissingCredential means no provider token is configured. The run
	// refuses to start; this is a precondition failure, not a sync failure.
	ErrMissingCredential = errors.New("provider token not configured")

	// ErrSyncInProgress means another run holds the sync lease. Callers
	// treat it as a normal condition, not a failure.
	ErrSyncInProgress = errors.New("sync already in progress")
)

const lastRunTTL = 24 * time.Hour

type SyncService struct {
	source    Source
	users     UserStore
	activity  ActivityStore
	cache     Cache
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
	token     string
}

func NewSyncService(
	source Source,
	users UserStore,
	activity ActivityStore,
	cacheStore Cache,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
	token string,
) *SyncService {
	return &SyncService{
		source:    source,
		users:     users,
		activity:  activity,
		cache:     cacheStore,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
		token:     token,
	}
}

// Sync runs one full refresh: select the stalest batch of users, sync each
// one through the provider, then invalidate the read caches. One user's
// failure never aborts the run; store failures around the batch itself do.
func (s *SyncService) Sync(ctx context.Context, trigger string) (*domain.SyncSummary, error) {
	startTime := time.Now()

	if s.token == "" {
		return nil, ErrMissingCredential
	}

	acquired, err := s.cache.SetIfAbsent(ctx, cache.KeySyncLease, []byte(trigger), s.config.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lease: %w", err)
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := s.cache.Delete(context.WithoutCancel(ctx), cache.KeySyncLease); err != nil {
			s.logger.Warn("failed to release sync lease", "error", err)
		}
	}()

	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	batch, err := s.users.SelectBatch(ctx, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("select batch: %w", err)
	}

	s.logger.Info("sync run started",
		"trigger", trigger,
		"total_users", total,
		"batch_size", s.config.BatchSize,
		"selected", len(batch),
		"request_delay", s.config.RequestDelay,
	)

	summary := &domain.SyncSummary{
		Trigger:    trigger,
		TotalUsers: total,
		BatchSize:  s.config.BatchSize,
		Outcomes:   make([]domain.SyncOutcome, 0, len(batch)),
	}

	for i := range batch {
		outcome := s.syncUser(ctx, &batch[i])

		summary.Outcomes = append(summary.Outcomes, outcome)
		summary.Synced++
		if outcome.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		s.logger.Info("user synced",
			"handle", outcome.Handle,
			"success", outcome.Success,
			"error", outcome.Error,
			"records_updated", outcome.RecordsUpdated,
		)

		// Throttle between provider calls, not after the last one.
		if i < len(batch)-1 && s.config.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.config.RequestDelay):
			}
		}
	}

	if err := s.invalidateCaches(ctx); err != nil {
		return nil, err
	}

	lastRun := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := s.cache.Set(ctx, cache.KeyLastSync, lastRun, lastRunTTL); err != nil {
		return nil, fmt.Errorf("record last run: %w", err)
	}

	summary.Duration = time.Since(startTime)

	if s.publisher != nil {
		if err := s.publisher.PublishSummary(ctx, summary); err != nil {
			s.logger.Warn("failed to publish sync summary", "error", err)
		}
	}

	s.logger.Info("sync run completed",
		"trigger", trigger,
		"total_users", summary.TotalUsers,
		"synced", summary.Synced,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)

	return summary, nil
}

// syncUser processes one user and always returns an outcome. The rotation
// timestamp is bumped even on failure so a broken user rotates to the back
// of the selection order instead of starving everyone behind it.
func (s *SyncService) syncUser(ctx context.Context, user *domain.User) domain.SyncOutcome {
	now := time.Now().UTC()

	data, err := s.source.FetchUser(ctx, user.Handle, s.token)
	if err != nil {
		s.bumpAfterFailure(ctx, user, now)
		return domain.SyncOutcome{
			UserID:  user.ID,
			Handle:  user.Handle,
			Success: false,
			Error:   devstats.Classify(err),
		}
	}

	windowStart := windowStart(now, s.config.WindowDays)
	records := trailingWindow(data.Daily, windowStart)

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.activity.ReplaceWindow(txCtx, user.ID, records, windowStart); err != nil {
			return fmt.Errorf("replace activity window: %w", err)
		}
		if err := s.users.UpdateProfileAndRotation(txCtx, user.ID, data.Profile, now); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to persist user sync", "handle", user.Handle, "error", err)
		s.bumpAfterFailure(ctx, user, now)
		return domain.SyncOutcome{
			UserID:  user.ID,
			Handle:  user.Handle,
			Success: false,
			Error:   domain.ErrClassStore,
		}
	}

	return domain.SyncOutcome{
		UserID:         user.ID,
		Handle:         user.Handle,
		Success:        true,
		RecordsUpdated: len(records),
	}
}

func (s *SyncService) bumpAfterFailure(ctx context.Context, user *domain.User, now time.Time) {
	if err := s.users.BumpRotation(ctx, user.ID, now); err != nil {
		s.logger.Error("failed to bump rotation timestamp", "handle", user.Handle, "error", err)
	}
}

func (s *SyncService) invalidateCaches(ctx context.Context) error {
	prefixes := []string{cache.PrefixLeaderboard, cache.PrefixProfile, cache.PrefixStats}

	for _, prefix := range prefixes {
		deleted, err := s.cache.DeleteByPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("invalidate %q: %w", prefix, err)
		}
		s.logger.Debug("cache invalidated", "prefix", prefix, "deleted", deleted)
	}

	if err := s.cache.Delete(ctx, cache.KeyGlobalStats); err != nil {
		return fmt.Errorf("invalidate global stats: %w", err)
	}

	return nil
}

// windowStart is the first calendar day (UTC) of the trailing window that
// a sync rewrites.
func windowStart(now time.Time, windowDays int) time.Time {
	day := now.AddDate(0, 0, -(windowDays - 1))
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

func trailingWindow(records []domain.DailyActivity, start time.Time) []domain.DailyActivity {
	var window []domain.DailyActivity
	for _, rec := range records {
		if !rec.Day.Before(start) {
			window = append(window, rec)
		}
	}
	return window
}
