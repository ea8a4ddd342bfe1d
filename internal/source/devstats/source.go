package devstats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"streakboard/internal/domain"
)

const (
	SourceID   = "devstats"
	SourceName = "DevStats API"
)

// Config holds DevStats client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Source is the DevStats HTTP client. Deliberately retry-free: a failed
// user is retried on the next rotation, not within the run.
type Source struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		logger:  logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchUser fetches one user's profile and daily activity.
func (s *Source) FetchUser(ctx context.Context, handle, token string) (*domain.ProviderData, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/activity", s.baseURL, url.PathEscape(handle))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "Streakboard/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("fetch %q: %w", handle, ErrNotFound)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetch %q: %w", handle, ErrRateLimited)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("fetch %q: %w", handle, ErrUnauthorized)
	default:
		return nil, fmt.Errorf("fetch %q: %w", handle, &APIError{StatusCode: resp.StatusCode})
	}

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return s.transform(&apiResp), nil
}

func (s *Source) transform(resp *APIResponse) *domain.ProviderData {
	data := &domain.ProviderData{
		Profile: domain.Profile{
			ExternalID:  resp.Profile.ID,
			DisplayName: resp.Profile.DisplayName,
			AvatarURL:   resp.Profile.AvatarURL,
			TotalSolved: resp.Profile.TotalSolved,
		},
	}

	for _, d := range resp.DailyActivity {
		day, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			s.logger.Warn("failed to parse activity date",
				"handle", resp.Profile.Handle,
				"date", d.Date,
			)
			continue
		}

		data.Daily = append(data.Daily, domain.DailyActivity{
			Day:   day,
			Count: d.Count,
			Total: d.Total,
		})
	}

	return data
}
