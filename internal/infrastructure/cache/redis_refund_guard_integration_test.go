//go:build integration

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisContainerClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisRefundGuard_Integration(t *testing.T) {
	client := newRedisContainerClient(t)
	ctx := context.Background()

	t.Run("serializes holders of one key", func(t *testing.T) {
		guard := NewRedisRefundGuardWithClient(client, WithRetryInterval(5*time.Millisecond))

		var inside, overlaps int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := guard.Guard(ctx, "order:serial", func(ctx context.Context) error {
					if atomic.AddInt32(&inside, 1) > 1 {
						atomic.AddInt32(&overlaps, 1)
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Zero(t, overlaps)
		exists, err := client.Exists(ctx, "billing:refund:lock:order:serial").Result()
		require.NoError(t, err)
		assert.Zero(t, exists, "lock is released")
	})

	t.Run("gives up after the wait budget", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "billing:refund:lock:order:held", "someone-else", time.Minute).Err())
		guard := NewRedisRefundGuardWithClient(client,
			WithRetryInterval(10*time.Millisecond),
			WithMaxWait(50*time.Millisecond))

		err := guard.Guard(ctx, "order:held", func(ctx context.Context) error { return nil })

		assert.True(t, errors.Is(err, ErrGuardBusy))
		owner, err := client.Get(ctx, "billing:refund:lock:order:held").Result()
		require.NoError(t, err)
		assert.Equal(t, "someone-else", owner, "a foreign lock is never deleted")
	})
}
