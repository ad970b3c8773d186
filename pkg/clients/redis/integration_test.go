//go:build integration

// Package redis_test contains integration tests for the Redis client that
// require a running Redis instance via testcontainers-go. These tests are
// gated behind the "integration" build tag and are executed in CI with Docker.
//
// Run locally with:
//
//	go test -v -race -tags=integration ./pkg/clients/redis/...
//
// All tests run within a single [suite.Suite] that starts one Redis
// container in SetupSuite and terminates it in TearDownSuite. Test
// isolation is achieved via unique key prefixes per test method rather
// than per-test containers, which reduces total execution time.
package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/StricklySoft/stricklysoft-auth/internal/testutil/containers"
	"github.com/StricklySoft/stricklysoft-auth/pkg/clients/redis"
)

type RedisIntegrationSuite struct {
	suite.Suite

	ctx         context.Context
	redisResult *containers.RedisResult
	client      *redis.Client
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	result, err := containers.StartRedis(s.ctx)
	require.NoError(s.T(), err, "failed to start Redis container")
	s.redisResult = result

	cfg := redis.Config{
		URI:      result.ConnString,
		PoolSize: 10,
	}
	require.NoError(s.T(), cfg.Validate())

	client, err := redis.NewClient(s.ctx, cfg)
	require.NoError(s.T(), err, "failed to create Redis client")
	s.client = client
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.redisResult != nil {
		if err := s.redisResult.Container.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate redis container: %v", err)
		}
	}
}

func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) TestSetGetRoundTrip() {
	key := "it:roundtrip:jwt:validation:deadbeef"

	s.Require().NoError(s.client.Set(s.ctx, key, `{"valid":true}`, time.Minute))

	val, err := s.client.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(`{"valid":true}`, val)
}

func (s *RedisIntegrationSuite) TestGetMissingKeyReturnsNil() {
	_, err := s.client.Get(s.ctx, "it:missing:nope")
	s.Require().Error(err)
	s.True(redis.IsNil(err))
}

func (s *RedisIntegrationSuite) TestTTLIsApplied() {
	key := "it:ttl:introspection:cafebabe"

	s.Require().NoError(s.client.Set(s.ctx, key, "active", 5*time.Minute))

	ttl, err := s.client.TTL(s.ctx, key)
	s.Require().NoError(err)
	s.Greater(ttl, 4*time.Minute)
	s.LessOrEqual(ttl, 5*time.Minute)
}

func (s *RedisIntegrationSuite) TestDelRemovesKeys() {
	s.Require().NoError(s.client.Set(s.ctx, "it:del:a", "1", 0))
	s.Require().NoError(s.client.Set(s.ctx, "it:del:b", "2", 0))

	n, err := s.client.Del(s.ctx, "it:del:a", "it:del:b", "it:del:absent")
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	exists, err := s.client.Exists(s.ctx, "it:del:a")
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *RedisIntegrationSuite) TestDeletePatternScopedToPrefix() {
	for _, key := range []string{
		"it:pattern:jwt:validation:k1",
		"it:pattern:jwt:validation:k2",
		"it:pattern:jwt:validation:k3",
		"it:pattern:publickey:master:rsa-key-1",
	} {
		s.Require().NoError(s.client.Set(s.ctx, key, "v", time.Minute))
	}

	deleted, err := s.client.DeletePattern(s.ctx, "it:pattern:jwt:validation:*")
	s.Require().NoError(err)
	s.Equal(int64(3), deleted)

	// Keys outside the pattern survive.
	exists, err := s.client.Exists(s.ctx, "it:pattern:publickey:master:rsa-key-1")
	s.Require().NoError(err)
	s.Equal(int64(1), exists)
}

func (s *RedisIntegrationSuite) TestExpireAndHealth() {
	key := "it:expire:k"
	s.Require().NoError(s.client.Set(s.ctx, key, "v", 0))

	ok, err := s.client.Expire(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.client.Health(s.ctx))
}
