package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint used when scanning for prefix deletes.
const scanBatch = 256

// RedisStore persists records in Redis with a TTL per record.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a store on top of an existing Redis client.
// The store takes ownership of the client and closes it on Close.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// Load retrieves a record by key.
// Returns ErrCacheMiss if the key doesn't exist or the record is expired.
func (s *RedisStore) Load(ctx context.Context, key Key) (*Record, error) {
	cacheKey := key.String()

	data, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if rec.IsExpired() {
		_ = s.redis.Del(ctx, cacheKey).Err()
		return nil, ErrCacheMiss
	}

	return &rec, nil
}

// Save stores a record with TTL based on its Expires field.
// The record is removed by Redis when it expires.
func (s *RedisStore) Save(ctx context.Context, key Key, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("cache record cannot be nil")
	}

	ttl := rec.TTL()
	if ttl <= 0 {
		// Already expired, don't store
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal cache record: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// DeletePrefix removes the prefix key itself and every key below it.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix Key) (int, error) {
	base := prefix.String()

	deleted, err := s.redis.Del(ctx, base).Result()
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return 0, fmt.Errorf("redis del: %w", err)
	}

	iter := s.redis.Scan(ctx, 0, escapeGlob(base)+":*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.redis.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += n
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				CacheErrors.WithLabelValues("delete").Inc()
				return int(deleted), fmt.Errorf("redis del: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return int(deleted), fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return int(deleted), fmt.Errorf("redis del: %w", err)
	}

	return int(deleted), nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob escapes Redis MATCH pattern metacharacters.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
