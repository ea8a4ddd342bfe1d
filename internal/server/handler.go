package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"streakboard/internal/cache"
	"streakboard/internal/config"
	"streakboard/internal/domain"
	"streakboard/internal/ratelimit"
	"streakboard/internal/service"
)

// Rate-limit policy for the public endpoints. Fixed windows keyed per
// client IP.
const (
	registerLimit  = 5
	registerWindow = time.Minute

	syncTriggerLimit  = 2
	syncTriggerWindow = time.Minute
)

const (
	statsTTL       = 5 * time.Minute
	profileTTL     = time.Hour
	prewarmTimeout = 15 * time.Second
)

// Syncer triggers a sync run. Implemented by service.SyncService.
type Syncer interface {
	Sync(ctx context.Context, trigger string) (*domain.SyncSummary, error)
}

// UserRegistry is the slice of the user store the HTTP surface needs.
type UserRegistry interface {
	CreateUser(ctx context.Context, handle string) (*domain.User, error)
	GlobalStats(ctx context.Context) (*domain.GlobalStats, error)
}

// ProfileFetcher fetches provider data for one handle. Used to pre-warm
// the profile cache after registration.
type ProfileFetcher interface {
	FetchUser(ctx context.Context, handle, token string) (*domain.ProviderData, error)
}

type Handler struct {
	syncer        Syncer
	users         UserRegistry
	source        ProfileFetcher
	store         cache.Store
	limiter       *ratelimit.Limiter
	logger        *slog.Logger
	cfg           config.ServerConfig
	providerToken string
}

func NewHandler(
	syncer Syncer,
	users UserRegistry,
	source ProfileFetcher,
	store cache.Store,
	limiter *ratelimit.Limiter,
	cfg config.ServerConfig,
	providerToken string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		syncer:        syncer,
		users:         users,
		source:        source,
		store:         store,
		limiter:       limiter,
		logger:        logger,
		cfg:           cfg,
		providerToken: providerToken,
	}
}

// TriggerSync handles POST /api/v1/sync. Admin-only; a run already holding
// the lease answers 409 rather than queueing a second run.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, "sync", syncTriggerLimit, syncTriggerWindow) {
		return
	}

	summary, err := h.syncer.Sync(r.Context(), domain.TriggerManual)
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	case errors.Is(err, service.ErrMissingCredential):
		writeError(w, http.StatusServiceUnavailable, "provider credential not configured")
		return
	case err != nil:
		h.logger.Error("manual sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

type registerRequest struct {
	Handle string `json:"handle"`
}

type userResponse struct {
	ID          int64     `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	TotalSolved int       `json:"total_solved"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterUser handles POST /api/v1/users. Registering an already-known
// handle is idempotent and answers with the existing user.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, "register", registerLimit, registerWindow) {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle := strings.TrimSpace(req.Handle)
	if !validHandle(handle) {
		writeError(w, http.StatusBadRequest, "handle must be 1-64 characters: letters, digits, '-', '_'")
		return
	}

	user, err := h.users.CreateUser(r.Context(), handle)
	if err != nil {
		h.logger.Error("create user failed", "handle", handle, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	// Warm the profile cache off the request path. Best effort: the next
	// sync run fills it anyway.
	if h.source != nil && h.providerToken != "" {
		go h.prewarmProfile(handle)
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:          user.ID,
		Handle:      user.Handle,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
		TotalSolved: user.TotalSolved,
		CreatedAt:   user.CreatedAt,
	})
}

func (h *Handler) prewarmProfile(handle string) {
	ctx, cancel := context.WithTimeout(context.Background(), prewarmTimeout)
	defer cancel()

	data, err := h.source.FetchUser(ctx, handle, h.providerToken)
	if err != nil {
		h.logger.Debug("profile pre-warm skipped", "handle", handle, "error", err)
		return
	}

	body, err := json.Marshal(data.Profile)
	if err != nil {
		return
	}
	if err := h.store.Set(ctx, cache.ProfileKey(handle), body, profileTTL); err != nil {
		h.logger.Debug("profile pre-warm write failed", "handle", handle, "error", err)
	}
}

type syncStatusResponse struct {
	LastRun *string `json:"last_run"`
}

// SyncStatus handles GET /api/v1/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	value, err := h.store.Get(r.Context(), cache.KeyLastSync)
	if errors.Is(err, cache.ErrCacheMiss) {
		writeJSON(w, http.StatusOK, syncStatusResponse{LastRun: nil})
		return
	}
	if err != nil {
		h.logger.Error("read last sync timestamp failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}

	lastRun := string(value)
	writeJSON(w, http.StatusOK, syncStatusResponse{LastRun: &lastRun})
}

// Stats handles GET /api/v1/stats. The aggregate is computed at most once
// per TTL; everyone else reads the cached copy.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	body, cached, err := h.store.GetOrSet(r.Context(), cache.KeyGlobalStats, statsTTL, func() ([]byte, error) {
		stats, err := h.users.GlobalStats(r.Context())
		if err != nil {
			return nil, fmt.Errorf("aggregate stats: %w", err)
		}
		return json.Marshal(stats)
	})
	if err != nil {
		h.logger.Error("stats lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// allowed runs the fixed-window check for one action keyed by client IP.
// It writes the 429 response itself when the caller is over the limit.
func (h *Handler) allowed(w http.ResponseWriter, r *http.Request, action string, limit int64, window time.Duration) bool {
	if h.limiter == nil {
		return true
	}

	key := cache.RateLimitKey(clientIP(r), action)
	result, err := h.limiter.Check(r.Context(), key, limit, window)
	if err != nil {
		// Fail open: a broken counter backend must not take the API down.
		h.logger.Warn("rate limit check failed", "action", action, "error", err)
		return true
	}

	if !result.Allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.ResetIn.Seconds())))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func validHandle(handle string) bool {
	if len(handle) == 0 || len(handle) > 64 {
		return false
	}
	for _, c := range handle {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
