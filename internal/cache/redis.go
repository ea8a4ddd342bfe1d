package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncrScript refuses to increment a counter that already reached
// the limit, so check and increment are one indivisible step even under
// concurrent callers. EXPIRE only fires on the first increment, which
// starts the window.
var checkAndIncrScript = redis.NewScript(`
	local current = tonumber(redis.call("GET", KEYS[1]) or "0")
	if current >= tonumber(ARGV[1]) then
		return {current, 0}
	end
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[2])
	end
	return {count, 1}
`)

// RedisStore is the production Store implementation.
type RedisStore struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	var keys []string

	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan %q: %w", prefix, err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("delete %d keys under %q: %w", len(keys), prefix, err)
	}

	return len(keys), nil
}

func (s *RedisStore) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, bool, error) {
	if value, err := s.Get(ctx, key); err == nil {
		return value, true, nil
	}

	value, err := fn()
	if err != nil {
		return nil, false, err
	}

	if err := s.Set(ctx, key, value, ttl); err != nil {
		return nil, false, err
	}

	return value, false, nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) CheckAndIncr(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	result, err := checkAndIncrScript.Run(ctx, s.client, []string{key}, limit, int64(ttl.Seconds())).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("run counter script: %w", err)
	}
	if len(result) != 2 {
		return 0, false, fmt.Errorf("counter script returned %d values", len(result))
	}

	count, _ := result[0].(int64)
	incremented, _ := result[1].(int64)
	return count, incremented == 1, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
