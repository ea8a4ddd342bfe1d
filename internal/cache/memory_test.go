package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 300*time.Second))

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, s.Delete(ctx, "k"))

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting an absent key is a no-op.
	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestMemoryStore_GetExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), -time.Second))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", []byte("old"), time.Minute))
	require.NoError(t, s.Set(ctx, "k", []byte("new"), time.Minute))

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), value)
}

func TestMemoryStore_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "lb:weekly", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "lb:monthly", []byte("2"), time.Minute))
	require.NoError(t, s.Set(ctx, "profile:alice", []byte("3"), time.Minute))

	deleted, err := s.DeleteByPrefix(ctx, "lb:")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = s.Get(ctx, "lb:weekly")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = s.Get(ctx, "lb:monthly")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value, err := s.Get(ctx, "profile:alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), value)
}

func TestMemoryStore_GetOrSet_Hit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", []byte("cached"), time.Minute))

	value, cached, err := s.GetOrSet(ctx, "k", time.Minute, func() ([]byte, error) {
		t.Fatal("fetch must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("cached"), value)
}

func TestMemoryStore_GetOrSet_Miss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	calls := 0
	value, cached, err := s.GetOrSet(ctx, "k", time.Minute, func() ([]byte, error) {
		calls++
		return []byte("fetched"), nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("fetched"), value)
	assert.Equal(t, 1, calls)

	stored, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fetched"), stored)
}

func TestMemoryStore_GetOrSet_FetchError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fetchErr := errors.New("upstream down")
	_, _, err := s.GetOrSet(ctx, "k", time.Minute, func() ([]byte, error) {
		return nil, fetchErr
	})
	assert.ErrorIs(t, err, fetchErr)

	// A failed fetch leaves nothing behind.
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.SetIfAbsent(ctx, "lease", []byte("run-1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "lease", []byte("run-2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := s.Get(ctx, "lease")
	require.NoError(t, err)
	assert.Equal(t, []byte("run-1"), value)
}

func TestMemoryStore_SetIfAbsent_ExpiredLease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.SetIfAbsent(ctx, "lease", []byte("run-1"), -time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "lease", []byte("run-2"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_CheckAndIncr(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for want := int64(1); want <= 3; want++ {
		count, incremented, err := s.CheckAndIncr(ctx, "counter", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, incremented)
		assert.Equal(t, want, count)
	}

	// At the limit the counter stays put.
	count, incremented, err := s.CheckAndIncr(ctx, "counter", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, incremented)
	assert.Equal(t, int64(3), count)
}

func TestMemoryStore_CheckAndIncr_ExpiredWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.CheckAndIncr(ctx, "counter", 1, -time.Second)
	require.NoError(t, err)

	count, incremented, err := s.CheckAndIncr(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, incremented)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_CheckAndIncr_MalformedCounter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "counter", []byte("garbage"), time.Minute))

	count, incremented, err := s.CheckAndIncr(ctx, "counter", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, incremented)
	assert.Equal(t, int64(1), count)
}
