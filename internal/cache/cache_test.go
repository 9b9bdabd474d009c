package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plainhr/plain/internal/models"
)

type item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestKey(t *testing.T) {
	a := Key("stories:list", map[string]any{"tag": "hr", "limit": 10})
	b := Key("stories:list", map[string]any{"limit": 10, "tag": "hr"})
	assert.Equal(t, a, b, "Порядок параметров не должен влиять на ключ")
	assert.NotEqual(t, a, Key("stories:list", map[string]any{"limit": 20, "tag": "hr"}))
	assert.Equal(t, "story:1", Key("story:1", nil))
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss then hit", func(t *testing.T) {
		c, _ := newTestMemory(10, 0)
		calls := 0
		load := func(ctx context.Context) (*item, error) {
			calls++
			return &item{ID: "1", Count: calls}, nil
		}

		first, err := Fetch(ctx, c, "k", time.Minute, load)
		require.NoError(t, err)
		second, err := Fetch(ctx, c, "k", time.Minute, load)
		require.NoError(t, err)

		assert.Equal(t, 1, calls, "Второй вызов должен обслуживаться из кэша")
		assert.Equal(t, first, second)
	})

	t.Run("Stale fallback on transient error", func(t *testing.T) {
		c, clock := newTestMemory(10, time.Hour)
		_, err := Fetch(ctx, c, "k", time.Minute, func(ctx context.Context) (*item, error) {
			return &item{ID: "1", Count: 7}, nil
		})
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)
		got, err := Fetch(ctx, c, "k", time.Minute, func(ctx context.Context) (*item, error) {
			return nil, errors.New("connection refused")
		})
		require.NoError(t, err, "Ожидалось последнее известное значение")
		assert.Equal(t, 7, got.Count)
	})

	t.Run("Client errors are not masked", func(t *testing.T) {
		c, clock := newTestMemory(10, time.Hour)
		_, err := Fetch(ctx, c, "k", time.Minute, func(ctx context.Context) (*item, error) {
			return &item{ID: "1"}, nil
		})
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)
		_, err = Fetch(ctx, c, "k", time.Minute, func(ctx context.Context) (*item, error) {
			return nil, fmt.Errorf("%w: story", models.ErrNotFound)
		})
		assert.ErrorIs(t, err, models.ErrNotFound, "Клиентская ошибка должна возвращаться как есть")
	})

	t.Run("Transient error without stale value", func(t *testing.T) {
		c, _ := newTestMemory(10, time.Hour)
		boom := errors.New("timeout")
		_, err := Fetch(ctx, c, "k", time.Minute, func(ctx context.Context) (*item, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}
