package domain

import "time"

// Trigger tags carried through logging and the published summary.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Error classifications recorded on a failed SyncOutcome.
const (
	ErrClassNotFound     = "NOT_FOUND"
	ErrClassRateLimited  = "RATE_LIMITED"
	ErrClassUnauthorized = "UNAUTHORIZED"
	ErrClassAPI          = "API_ERROR"
	ErrClassStore        = "STORE_ERROR"
)

// SyncOutcome is the per-user result of one run. Built once, never mutated.
type SyncOutcome struct {
	UserID         int64  `json:"user_id"`
	Handle         string `json:"handle"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	RecordsUpdated int    `json:"records_updated"`
}

// SyncSummary aggregates one full run. Its field set is the data contract
// returned to both trigger surfaces.
type SyncSummary struct {
	Trigger    string        `json:"trigger"`
	TotalUsers int           `json:"total_users"`
	BatchSize  int           `json:"batch_size"`
	Synced     int           `json:"synced"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Outcomes   []SyncOutcome `json:"outcomes"`
	Duration   time.Duration `json:"duration"`
}
