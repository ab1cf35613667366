//go:build integration

// Package testutil starts real infrastructure for integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const redisPort nat.Port = "6379/tcp"

// RedisEnv is a disposable Redis server in a container.
type RedisEnv struct {
	Container testcontainers.Container
	URL       string
	Options   *redis.Options
}

// StartRedis starts redis:7-alpine and terminates it when the test ends.
func StartRedis(t *testing.T) *RedisEnv {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{string(redisPort)},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	t.Cleanup(func() {
		if err := redisC.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err, "Failed to get container host")
	port, err := redisC.MappedPort(ctx, redisPort)
	require.NoError(t, err, "Failed to get container port")

	url := fmt.Sprintf("redis://%s:%s/0", host, port.Port())
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	return &RedisEnv{Container: redisC, URL: url, Options: opts}
}

// Client returns a go-redis client closed at test end.
func (e *RedisEnv) Client(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(e.Options)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// Stop halts the container without removing it, simulating a broker outage.
func (e *RedisEnv) Stop(t *testing.T) {
	t.Helper()
	timeout := 5 * time.Second
	require.NoError(t, e.Container.Stop(context.Background(), &timeout))
}
