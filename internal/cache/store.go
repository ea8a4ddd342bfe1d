package cache

import (
	"context"
	"time"
)

// Store is the key/value contract shared by the read caches, the rate
// limiter counters, and the sync run lease. Implementations: MemoryStore
// for development and tests, RedisStore for production.
type Store interface {
	// Get returns the value under key. Returns ErrCacheMiss when the key
	// is absent, expired, or its stored payload is unreadable.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL, unconditionally
	// overwriting any existing value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix lists keys sharing prefix, then deletes each, and
	// returns how many were deleted. The two phases are not atomic: keys
	// written between list and delete may survive until the next
	// invalidation.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// GetOrSet returns the cached value with cached=true when present.
	// On a miss it calls fn once, stores the result with the TTL, and
	// returns it with cached=false. Concurrent misses on the same key may
	// each call fn; fn must be safe to run more than once.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, bool, error)

	// SetIfAbsent stores value only when key has no live entry, returning
	// whether the write happened. Used as a lease primitive.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CheckAndIncr atomically increments the counter at key unless it has
	// already reached limit. The TTL starts the window on the first
	// increment. Returns the counter value after the call and whether the
	// increment happened.
	CheckAndIncr(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error)
}

type StoreError string

func (e StoreError) Error() string { return string(e) }

// ErrCacheMiss indicates the key was not found.
const ErrCacheMiss StoreError = "cache miss"
