//go:build integration

package writer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"leadintake/internal/config"
	"leadintake/internal/dedup"
	"leadintake/internal/lead"
	"leadintake/internal/lead/leadtest"
	"leadintake/internal/logger"
	"leadintake/internal/writer"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLocker_SerializesFirstSightings(t *testing.T) {
	client := setupRedis(t)
	cfg := config.IngestConfig{
		Lock:         config.LockConfig{Enabled: true, TTL: 2 * time.Second, Wait: 2 * time.Second},
		OnRedisError: "deny",
	}
	repo := leadtest.NewMemoryRepository()
	w := writer.New(repo, dedup.NewResolver(), writer.NewRedisLocker(client, cfg, logger.NopLogger()), nil, logger.NopLogger())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.Write(context.Background(), "t1", lead.Fields{VendorLeadID: "locked", Phone: "(555) 000-0200"})
			if !assert.NoError(t, err) {
				return
			}
			if res.IsNew {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, repo.Len())

	keys, err := client.Keys(context.Background(), "lock:lead:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}
