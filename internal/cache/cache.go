package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/plainhr/plain/internal/metrics"
	"github.com/plainhr/plain/internal/retry"
)

var ErrMiss = errors.New("cache miss")

// Cache хранит сериализованные ответы с TTL. GetStale отдаёт последнее
// известное значение и после истечения TTL, пока не прошёл период stale grace.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetStale(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Key строит детерминированный ключ из префикса и параметров запроса.
// Ключи map сортируются encoding/json.
func Key(prefix string, params any) string {
	if params == nil {
		return prefix
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", prefix, params)
	}
	return prefix + ":" + string(data)
}

// Fetch возвращает значение из кэша или вызывает load и сохраняет результат.
// Если load упал с временной ошибкой, отдаётся устаревшее значение, если оно есть.
func Fetch[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var value T

	data, err := c.Get(ctx, key)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &value); jsonErr == nil {
			metrics.CacheResults.WithLabelValues("hit").Inc()
			return value, nil
		}
		metrics.CacheResults.WithLabelValues("error").Inc()
	case errors.Is(err, ErrMiss):
		metrics.CacheResults.WithLabelValues("miss").Inc()
	default:
		metrics.CacheResults.WithLabelValues("error").Inc()
	}

	value, err = load(ctx)
	if err != nil {
		if !retry.IsRetryable(err) {
			return value, err
		}
		if stale, staleErr := c.GetStale(ctx, key); staleErr == nil {
			var staleValue T
			if json.Unmarshal(stale, &staleValue) == nil {
				metrics.CacheResults.WithLabelValues("stale").Inc()
				return staleValue, nil
			}
		}
		return value, err
	}

	if data, err := json.Marshal(value); err == nil {
		if err := c.Set(ctx, key, data, ttl); err != nil {
			metrics.CacheResults.WithLabelValues("error").Inc()
		}
	}
	return value, nil
}
