package domain

import "time"

type User struct {
	ID          int64     `db:"id"`
	ExternalID  int64     `db:"external_id"`
	Handle      string    `db:"handle"`
	DisplayName *string   `db:"display_name"`
	AvatarURL   *string   `db:"avatar_url"`
	TotalSolved int       `db:"total_solved"`
	// LastRotatedAt is the last time a sync run processed this user,
	// success or failure. Batch selection orders by it ascending.
	LastRotatedAt time.Time `db:"last_rotated_at"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Profile holds the provider-owned attributes cached locally on a user.
type Profile struct {
	ExternalID  int64
	DisplayName *string
	AvatarURL   *string
	TotalSolved int
}

// DailyActivity is one row per (user, calendar day).
type DailyActivity struct {
	ID     int64     `db:"id"`
	UserID int64     `db:"user_id"`
	Day    time.Time `db:"day"`
	Count  int       `db:"count"`
	Total  int       `db:"total"`
}

// GlobalStats is the service-wide aggregate served from cache.
type GlobalStats struct {
	TotalUsers      int `db:"total_users" json:"total_users"`
	TotalSolved     int `db:"total_solved" json:"total_solved"`
	ActiveLastWeek  int `db:"active_last_week" json:"active_last_week"`
	RecordsLastWeek int `db:"records_last_week" json:"records_last_week"`
}

// ProviderData is what the external provider returns for one handle.
type ProviderData struct {
	Profile Profile
	Daily   []DailyActivity
}
