package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"streakboard/internal/domain"
)

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users")
	return count, err
}

// SelectBatch returns up to limit users, least-recently-rotated first.
// The id tiebreak keeps ordering stable when rotation timestamps collide.
func (s *UserStore) SelectBatch(ctx context.Context, limit int) ([]domain.User, error) {
	query := `
		SELECT id, external_id, handle, display_name, avatar_url, total_solved,
		       last_rotated_at, created_at, updated_at
		FROM users
		ORDER BY last_rotated_at ASC, id ASC
		LIMIT $1`

	var users []domain.User
	err := s.db.SelectContext(ctx, &users, query, limit)
	return users, err
}

// CreateUser registers a handle for tracking. Re-registering an existing
// handle returns the existing row untouched.
func (s *UserStore) CreateUser(ctx context.Context, handle string) (*domain.User, error) {
	query := `
		INSERT INTO users (handle)
		VALUES ($1)
		ON CONFLICT (handle) DO NOTHING
		RETURNING id, external_id, handle, display_name, avatar_url, total_solved,
		          last_rotated_at, created_at, updated_at`

	var user domain.User
	err := s.db.GetContext(ctx, &user, query, handle)
	if err == sql.ErrNoRows {
		err = s.db.GetContext(ctx, &user, `
			SELECT id, external_id, handle, display_name, avatar_url, total_solved,
			       last_rotated_at, created_at, updated_at
			FROM users WHERE handle = $1`, handle)
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *UserStore) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, `
		SELECT id, external_id, handle, display_name, avatar_url, total_solved,
		       last_rotated_at, created_at, updated_at
		FROM users WHERE handle = $1`, handle)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GlobalStats aggregates service-wide counters in one round trip. Callers
// are expected to cache the result; the query scans daily_activity.
func (s *UserStore) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COALESCE(SUM(total_solved), 0) FROM users) AS total_solved,
			(SELECT COUNT(DISTINCT user_id) FROM daily_activity
			 WHERE day >= CURRENT_DATE - INTERVAL '6 days') AS active_last_week,
			(SELECT COALESCE(SUM(count), 0) FROM daily_activity
			 WHERE day >= CURRENT_DATE - INTERVAL '6 days') AS records_last_week`

	var stats domain.GlobalStats
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *UserStore) UpdateProfileAndRotation(ctx context.Context, userID int64, profile domain.Profile, now time.Time) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx, `
		UPDATE users
		SET external_id = $2,
		    display_name = $3,
		    avatar_url = $4,
		    total_solved = $5,
		    last_rotated_at = $6,
		    updated_at = NOW()
		WHERE id = $1`,
		userID,
		profile.ExternalID,
		profile.DisplayName,
		profile.AvatarURL,
		profile.TotalSolved,
		now,
	)
	return err
}

// BumpRotation advances only the rotation timestamp. Called after a failed
// sync so the user does not stay at the head of the batch order.
func (s *UserStore) BumpRotation(ctx context.Context, userID int64, now time.Time) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"UPDATE users SET last_rotated_at = $2, updated_at = NOW() WHERE id = $1",
		userID, now,
	)
	return err
}
