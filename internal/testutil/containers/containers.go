// Package containers provides testcontainers-go helpers for integration
// tests that need real backing services. Helpers return a *Result struct
// with the container handle and the connection details the client under
// test needs.
//
// All helpers require a running Docker daemon. Integration tests that use
// them are gated behind the "integration" build tag:
//
//	go test -v -race -tags=integration ./...
//
// # Redis
//
// [StartRedis] starts a Redis 7 container and returns a [RedisResult]
// containing the container handle and a connection string (redis://...):
//
//	result, err := containers.StartRedis(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
package containers

import (
	"context"
	"fmt"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// DefaultRedisImage is the container image used for Redis integration
// tests. Pinned to the 7.x line because that is what the validation
// cache runs against in production.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult holds a started Redis container and the connection string
// needed to connect to it. The caller is responsible for terminating
// the container when it is no longer needed:
//
//	defer result.Container.Terminate(ctx)
type RedisResult struct {
	// Container is the started Redis testcontainer. Use it to retrieve
	// mapped ports, inspect logs, or terminate the container.
	Container *tcredis.RedisContainer

	// ConnString is a redis:// connection URI for the container,
	// suitable for Config.URI.
	ConnString string
}

// StartRedis starts a Redis container using [DefaultRedisImage] and
// returns a [RedisResult] containing the container handle and a
// connection string. No authentication is configured; the container is
// ephemeral and reachable only from the test host.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}

	return &RedisResult{
		Container:  container,
		ConnString: connStr,
	}, nil
}
