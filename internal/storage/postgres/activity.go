package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"streakboard/internal/domain"
)

type ActivityStore struct {
	db *sqlx.DB
}

func NewActivityStore(db *sqlx.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// ReplaceWindow rewrites one user's trailing activity window: every row on
// or after windowStart is deleted, then the fetched rows are inserted.
// Delete+insert stands in for a native upsert and bounds per-run write
// volume to the window. Callers wrap this in a transaction together with
// the profile update.
func (s *ActivityStore) ReplaceWindow(ctx context.Context, userID int64, records []domain.DailyActivity, windowStart time.Time) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM daily_activity WHERE user_id = $1 AND day >= $2",
		userID, windowStart,
	)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO daily_activity (user_id, day, count, total) VALUES ")
	valueArgs := make([]interface{}, 0, len(records)*4)

	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($")
		sb.WriteString(itoa(i*4 + 1))
		sb.WriteString(", $")
		sb.WriteString(itoa(i*4 + 2))
		sb.WriteString(", $")
		sb.WriteString(itoa(i*4 + 3))
		sb.WriteString(", $")
		sb.WriteString(itoa(i*4 + 4))
		sb.WriteString(")")
		valueArgs = append(valueArgs, userID, rec.Day, rec.Count, rec.Total)
	}

	_, err = exec.ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

// GetWindow returns one user's rows on or after windowStart, oldest first.
func (s *ActivityStore) GetWindow(ctx context.Context, userID int64, windowStart time.Time) ([]domain.DailyActivity, error) {
	query := `
		SELECT id, user_id, day, count, total
		FROM daily_activity
		WHERE user_id = $1 AND day >= $2
		ORDER BY day ASC`

	var records []domain.DailyActivity
	err := s.db.SelectContext(ctx, &records, query, userID, windowStart)
	return records, err
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
