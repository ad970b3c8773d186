package keycloak

import (
	"context"
	"time"

	"github.com/StricklySoft/stricklysoft-auth/pkg/clients/redis"
)

// RedisStore adapts the platform Redis client to the [Store] interface.
// This is the production backing store for the validation cache; the
// validation services share one Redis instance so cache entries survive
// process restarts and are shared across replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a connected Redis client. The caller retains
// ownership of the client and is responsible for closing it.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

// Get returns the value for key, reporting a miss as found=false rather
// than an error.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl)
}

// Delete removes the given keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.Del(ctx, keys...)
	return err
}

// InvalidatePattern removes all keys matching a glob pattern via
// cursor-based SCAN, returning the number deleted.
func (s *RedisStore) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	return s.client.DeletePattern(ctx, pattern)
}
