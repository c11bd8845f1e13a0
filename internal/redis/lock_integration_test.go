//go:build integration

package redisclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestSlotLocker(t *testing.T) {
	rdb, err := NewRedisClient(startRedis(t), "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	locker := NewRedisSlotLocker(rdb, 2*time.Second)
	ctx := context.Background()
	slot := "doctor:2030-01-02:9-10"

	t.Run("second holder is refused while the first runs", func(t *testing.T) {
		err := locker.WithSlotLock(ctx, slot, func(ctx context.Context) error {
			inner := locker.WithSlotLock(ctx, slot, func(context.Context) error { return nil })
			assert.ErrorIs(t, inner, ErrLockNotAcquired)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("lock is released after fn returns an error", func(t *testing.T) {
		boom := errors.New("boom")
		err := locker.WithSlotLock(ctx, slot, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)

		exists, err := rdb.Exists(ctx, SlotLockKey(slot)).Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
	})

	t.Run("release does not remove another holder's key", func(t *testing.T) {
		require.NoError(t, rdb.Set(ctx, SlotLockKey("foreign"), "someone-else", time.Minute).Err())
		l := locker.(*redisSlotLocker)
		require.NoError(t, l.release(ctx, SlotLockKey("foreign"), "my-token"))

		val, err := rdb.Get(ctx, SlotLockKey("foreign")).Result()
		require.NoError(t, err)
		assert.Equal(t, "someone-else", val)
	})

	assert.NoError(t, Pinger{Client: rdb}.Ping(ctx))
}
