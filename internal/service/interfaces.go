package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"streakboard/internal/domain"
)

type UserStore interface {
	CountUsers(ctx context.Context) (int, error)
	SelectBatch(ctx context.Context, limit int) ([]domain.User, error)
	UpdateProfileAndRotation(ctx context.Context, userID int64, profile domain.Profile, now time.Time) error
	BumpRotation(ctx context.Context, userID int64, now time.Time) error
}

type ActivityStore interface {
	ReplaceWindow(ctx context.Context, userID int64, records []domain.DailyActivity, windowStart time.Time) error
}

type Source interface {
	ID() string
	Name() string
	FetchUser(ctx context.Context, handle, token string) (*domain.ProviderData, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Cache is the slice of the cache store the engine needs: the run lease,
// completion-time invalidation, and the last-run marker.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

type Publisher interface {
	PublishSummary(ctx context.Context, summary *domain.SyncSummary) error
	Close() error
}
