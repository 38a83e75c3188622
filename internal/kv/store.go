package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the key-value backend is unreachable or returned a
// transport-level failure. Callers classify it with errors.Is; they must never
// match on message text.
var ErrUnavailable = errors.New("key-value store unavailable")

// Store is a thin adapter over a shared Redis client. All guards in this
// module go through it; none of them open their own connection.
type Store struct {
	redis redis.UniversalClient
}

// New creates a [Store] backed by the given Redis client. The client is owned
// by the caller: opened at process startup, closed at shutdown.
func New(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient}
}

// Get returns the string value at key. The second return is false when the
// key does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

// SetEx writes a string value with a TTL. ttl must be positive; Redis rejects
// zero or negative expirations on SET.
func (s *Store) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// HGetAll returns all fields of a hash. A missing key yields an empty map,
// not an error; callers treat absent fields as zero values.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fields, nil
}

// HSetEx writes hash fields and refreshes the key TTL in one round-trip.
func (s *Store) HSetEx(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// HIncrByEx atomically increments a hash field and refreshes the key TTL.
// Returns the new field value.
func (s *Store) HIncrByEx(ctx context.Context, key, field string, delta int64, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, field, delta)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return incr.Val(), nil
}

// Expire refreshes a key TTL without touching the value.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Del removes keys. Deleting a missing key is not an error.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DelCount removes keys and reports how many actually existed.
func (s *Store) DelCount(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// ScanKeys enumerates all keys matching pattern via cursor iteration.
// This is an admin-only O(n) operation and must not be used in request hot paths.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// GetMany reads several string keys in one pipelined round-trip. Missing keys
// yield empty strings with found=false at the matching index.
//
// The pipeline is a latency optimization, not a transaction: values observed
// for different keys may interleave with concurrent writers.
func (s *Store) GetMany(ctx context.Context, keys []string) ([]string, []bool, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	values := make([]string, len(keys))
	found := make([]bool, len(keys))
	for i, cmd := range cmds {
		val, err := cmd.Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		values[i] = val
		found[i] = true
	}

	return values, found, nil
}

// Pipelined runs fn against a transactional pipeline. Commands are sent
// batched; per-key atomicity only, no cross-key guarantees.
func (s *Store) Pipelined(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	if _, err := s.redis.TxPipelined(ctx, fn); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time backend availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
