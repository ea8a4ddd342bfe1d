//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"streakboard/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_users.up.sql"),
			filepath.Join(migrationsPath, "002_create_daily_activity.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM daily_activity")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM users")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func ptr(s string) *string { return &s }

// day truncates to a calendar day in UTC, matching the date column.
func day(offset int) time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, offset)
}

func (s *PostgresIntegrationSuite) mustCreateUser(handle string) *domain.User {
	store := NewUserStore(s.db)
	user, err := store.CreateUser(s.ctx, handle)
	s.Require().NoError(err)
	return user
}

func (s *PostgresIntegrationSuite) TestUserStore_CreateUser() {
	store := NewUserStore(s.db)

	user, err := store.CreateUser(s.ctx, "alice")
	s.NoError(err)
	s.Greater(user.ID, int64(0))
	s.Equal("alice", user.Handle)
	s.Zero(user.TotalSolved)

	// A fresh user sorts to the head of the batch order.
	s.True(user.LastRotatedAt.Before(time.Now().Add(-24 * time.Hour)))
}

func (s *PostgresIntegrationSuite) TestUserStore_CreateUser_Idempotent() {
	first := s.mustCreateUser("alice")
	second := s.mustCreateUser("alice")

	s.Equal(first.ID, second.ID)

	count, err := NewUserStore(s.db).CountUsers(s.ctx)
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestUserStore_CountUsers() {
	store := NewUserStore(s.db)

	count, err := store.CountUsers(s.ctx)
	s.NoError(err)
	s.Zero(count)

	s.mustCreateUser("alice")
	s.mustCreateUser("bob")

	count, err = store.CountUsers(s.ctx)
	s.NoError(err)
	s.Equal(2, count)
}

func (s *PostgresIntegrationSuite) TestUserStore_SelectBatch_OldestFirst() {
	store := NewUserStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	alice := s.mustCreateUser("alice")
	bob := s.mustCreateUser("bob")
	carol := s.mustCreateUser("carol")

	// alice synced most recently, carol longest ago.
	s.Require().NoError(store.BumpRotation(s.ctx, alice.ID, now))
	s.Require().NoError(store.BumpRotation(s.ctx, bob.ID, now.Add(-2*time.Hour)))
	s.Require().NoError(store.BumpRotation(s.ctx, carol.ID, now.Add(-4*time.Hour)))

	batch, err := store.SelectBatch(s.ctx, 2)
	s.NoError(err)
	s.Require().Len(batch, 2)
	s.Equal("carol", batch[0].Handle)
	s.Equal("bob", batch[1].Handle)
}

func (s *PostgresIntegrationSuite) TestUserStore_SelectBatch_IDTiebreak() {
	store := NewUserStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	alice := s.mustCreateUser("alice")
	bob := s.mustCreateUser("bob")
	s.Require().NoError(store.BumpRotation(s.ctx, alice.ID, now))
	s.Require().NoError(store.BumpRotation(s.ctx, bob.ID, now))

	batch, err := store.SelectBatch(s.ctx, 2)
	s.NoError(err)
	s.Require().Len(batch, 2)
	s.Equal(alice.ID, batch[0].ID)
	s.Equal(bob.ID, batch[1].ID)
}

func (s *PostgresIntegrationSuite) TestUserStore_UpdateProfileAndRotation() {
	store := NewUserStore(s.db)
	user := s.mustCreateUser("alice")
	now := time.Now().UTC().Truncate(time.Microsecond)

	profile := domain.Profile{
		ExternalID:  9001,
		DisplayName: ptr("Alice"),
		AvatarURL:   ptr("https://example.com/alice.png"),
		TotalSolved: 123,
	}
	s.Require().NoError(store.UpdateProfileAndRotation(s.ctx, user.ID, profile, now))

	updated, err := store.GetByHandle(s.ctx, "alice")
	s.NoError(err)
	s.Equal(int64(9001), updated.ExternalID)
	s.Require().NotNil(updated.DisplayName)
	s.Equal("Alice", *updated.DisplayName)
	s.Equal(123, updated.TotalSolved)
	s.WithinDuration(now, updated.LastRotatedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestUserStore_BumpRotation() {
	store := NewUserStore(s.db)
	user := s.mustCreateUser("alice")
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(store.BumpRotation(s.ctx, user.ID, now))

	updated, err := store.GetByHandle(s.ctx, "alice")
	s.NoError(err)
	s.WithinDuration(now, updated.LastRotatedAt, time.Second)
	// Only the rotation moved; the profile stays untouched.
	s.Zero(updated.TotalSolved)
	s.Nil(updated.DisplayName)
}

func (s *PostgresIntegrationSuite) TestUserStore_GlobalStats() {
	userStore := NewUserStore(s.db)
	activityStore := NewActivityStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	alice := s.mustCreateUser("alice")
	s.mustCreateUser("bob")
	s.Require().NoError(userStore.UpdateProfileAndRotation(s.ctx, alice.ID,
		domain.Profile{ExternalID: 1, TotalSolved: 50}, now))

	records := []domain.DailyActivity{
		{Day: day(-1), Count: 3, Total: 50},
		{Day: day(0), Count: 2, Total: 52},
	}
	s.Require().NoError(activityStore.ReplaceWindow(s.ctx, alice.ID, records, day(-6)))

	stats, err := userStore.GlobalStats(s.ctx)
	s.NoError(err)
	s.Equal(2, stats.TotalUsers)
	s.Equal(50, stats.TotalSolved)
	s.Equal(1, stats.ActiveLastWeek)
	s.Equal(5, stats.RecordsLastWeek)
}

func (s *PostgresIntegrationSuite) TestActivityStore_ReplaceWindow() {
	store := NewActivityStore(s.db)
	user := s.mustCreateUser("alice")
	windowStart := day(-6)

	initial := []domain.DailyActivity{
		{Day: day(-3), Count: 1, Total: 10},
		{Day: day(-2), Count: 2, Total: 12},
	}
	s.Require().NoError(store.ReplaceWindow(s.ctx, user.ID, initial, windowStart))

	// The rewrite drops the old in-window rows and installs the new set.
	replacement := []domain.DailyActivity{
		{Day: day(-2), Count: 5, Total: 15},
		{Day: day(0), Count: 1, Total: 16},
	}
	s.Require().NoError(store.ReplaceWindow(s.ctx, user.ID, replacement, windowStart))

	rows, err := store.GetWindow(s.ctx, user.ID, windowStart)
	s.NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(5, rows[0].Count)
	s.Equal(day(-2), rows[0].Day.UTC())
	s.Equal(1, rows[1].Count)
}

func (s *PostgresIntegrationSuite) TestActivityStore_ReplaceWindow_KeepsRowsBeforeWindow() {
	store := NewActivityStore(s.db)
	user := s.mustCreateUser("alice")

	old := []domain.DailyActivity{{Day: day(-30), Count: 7, Total: 7}}
	s.Require().NoError(store.ReplaceWindow(s.ctx, user.ID, old, day(-31)))

	fresh := []domain.DailyActivity{{Day: day(0), Count: 1, Total: 8}}
	s.Require().NoError(store.ReplaceWindow(s.ctx, user.ID, fresh, day(-6)))

	rows, err := store.GetWindow(s.ctx, user.ID, day(-31))
	s.NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(7, rows[0].Count)
	s.Equal(1, rows[1].Count)
}

func (s *PostgresIntegrationSuite) TestActivityStore_ReplaceWindow_EmptyRecords() {
	store := NewActivityStore(s.db)
	user := s.mustCreateUser("alice")
	windowStart := day(-6)

	initial := []domain.DailyActivity{{Day: day(-1), Count: 4, Total: 4}}
	s.Require().NoError(store.ReplaceWindow(s.ctx, user.ID, initial, windowStart))

	// An empty fetch result clears the window.
	s.Require().NoError(store.ReplaceWindow(s.ctx, user.ID, nil, windowStart))

	rows, err := store.GetWindow(s.ctx, user.ID, windowStart)
	s.NoError(err)
	s.Empty(rows)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_Commit() {
	userStore := NewUserStore(s.db)
	activityStore := NewActivityStore(s.db)
	tm := NewTransactionManager(s.db)
	user := s.mustCreateUser("alice")
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		records := []domain.DailyActivity{{Day: day(0), Count: 2, Total: 2}}
		if err := activityStore.ReplaceWindow(ctx, user.ID, records, day(-6)); err != nil {
			return err
		}
		return userStore.UpdateProfileAndRotation(ctx, user.ID,
			domain.Profile{ExternalID: 1, TotalSolved: 2}, now)
	})
	s.NoError(err)

	updated, err := userStore.GetByHandle(s.ctx, "alice")
	s.NoError(err)
	s.Equal(2, updated.TotalSolved)

	rows, err := activityStore.GetWindow(s.ctx, user.ID, day(-6))
	s.NoError(err)
	s.Len(rows, 1)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_Rollback() {
	userStore := NewUserStore(s.db)
	activityStore := NewActivityStore(s.db)
	tm := NewTransactionManager(s.db)
	user := s.mustCreateUser("alice")
	now := time.Now().UTC().Truncate(time.Microsecond)

	boom := errors.New("boom")
	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		records := []domain.DailyActivity{{Day: day(0), Count: 2, Total: 2}}
		if err := activityStore.ReplaceWindow(ctx, user.ID, records, day(-6)); err != nil {
			return err
		}
		if err := userStore.UpdateProfileAndRotation(ctx, user.ID,
			domain.Profile{ExternalID: 1, TotalSolved: 2}, now); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	// Neither write survives the rollback.
	updated, err := userStore.GetByHandle(s.ctx, "alice")
	s.NoError(err)
	s.Zero(updated.TotalSolved)

	rows, err := activityStore.GetWindow(s.ctx, user.ID, day(-6))
	s.NoError(err)
	s.Empty(rows)
}
