package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропуск интеграционного теста Redis в режиме -short")
	}

	ctx := context.Background()
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить контейнер Redis: %v", err)
	}
	defer redisC.Terminate(ctx)

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	c := NewRedis(client, "test:", time.Hour, nil)

	t.Run("Set Get and stale copy", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "story:1", []byte(`{"id":"1"}`), time.Second))

		got, err := c.Get(ctx, "story:1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"1"}`, string(got))

		ttl, err := client.TTL(ctx, "test:stale:story:1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Minute, "Устаревшая копия должна жить дольше основной")

		_, err = c.Get(ctx, "absent")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("Stale after expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "lounge:1", []byte("v"), time.Second))
		assert.Eventually(t, func() bool {
			_, err := c.Get(ctx, "lounge:1")
			return err == ErrMiss
		}, 5*time.Second, 100*time.Millisecond)

		stale, err := c.GetStale(ctx, "lounge:1")
		require.NoError(t, err)
		assert.Equal(t, "v", string(stale))
	})

	t.Run("DeletePrefix", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "stories:list:a", []byte("a"), time.Minute))
		require.NoError(t, c.Set(ctx, "stories:list:b", []byte("b"), time.Minute))
		require.NoError(t, c.Set(ctx, "story:2", []byte("s"), time.Minute))

		require.NoError(t, c.DeletePrefix(ctx, "stories:list"))

		_, err := c.Get(ctx, "stories:list:a")
		assert.ErrorIs(t, err, ErrMiss)
		_, err = c.GetStale(ctx, "stories:list:b")
		assert.ErrorIs(t, err, ErrMiss, "Устаревшие копии тоже должны удаляться")
		_, err = c.Get(ctx, "story:2")
		assert.NoError(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "story:3", []byte("s"), time.Minute))
		require.NoError(t, c.Delete(ctx, "story:3"))
		_, err := c.GetStale(ctx, "story:3")
		assert.ErrorIs(t, err, ErrMiss)
	})
}
