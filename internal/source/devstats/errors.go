package devstats

import (
	"errors"
	"fmt"

	"streakboard/internal/domain"
)

var (
	ErrNotFound     = errors.New("devstats: user not found")
	ErrRateLimited  = errors.New("devstats: rate limited")
	ErrUnauthorized = errors.New("devstats: unauthorized")
)

// APIError covers any other non-2xx response from the provider.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("devstats: unexpected status %d", e.StatusCode)
}

// Classify maps a fetch error to the short string recorded on a failed
// SyncOutcome. All provider errors are treated uniformly by the engine;
// the classification exists for reporting, not for retry branching.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return domain.ErrClassNotFound
	case errors.Is(err, ErrRateLimited):
		return domain.ErrClassRateLimited
	case errors.Is(err, ErrUnauthorized):
		return domain.ErrClassUnauthorized
	default:
		return domain.ErrClassAPI
	}
}
