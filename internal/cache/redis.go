package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const staleKeyPrefix = "stale:"

// RedisCache хранит значение под ключом с TTL и его копию под stale:ключ
// с TTL+staleGrace для отдачи при недоступности хранилища.
type RedisCache struct {
	client     *redis.Client
	namespace  string
	staleGrace time.Duration
	logger     *zap.Logger
}

var _ Cache = (*RedisCache)(nil)

func NewRedis(client *redis.Client, namespace string, staleGrace time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client:     client,
		namespace:  namespace,
		staleGrace: staleGrace,
		logger:     logger.Named("RedisCache"),
	}
}

func (c *RedisCache) key(key string) string {
	return c.namespace + key
}

func (c *RedisCache) staleKey(key string) string {
	return c.namespace + staleKeyPrefix + key
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache key: %w", err)
	}
	return data, nil
}

func (c *RedisCache) GetStale(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.staleKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stale cache key: %w", err)
	}
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.key(key), value, ttl)
	pipe.Set(ctx, c.staleKey(key), value, ttl+c.staleGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to set cache entry", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set cache key: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		full = append(full, c.key(k), c.staleKey(k))
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// DeletePrefix удаляет свежие и устаревшие копии ключей с префиксом через SCAN.
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	for _, pattern := range []string{c.key(prefix) + "*", c.staleKey(prefix) + "*"} {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) >= 100 {
				if err := c.client.Del(ctx, batch...).Err(); err != nil {
					return fmt.Errorf("failed to delete cache keys: %w", err)
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(batch) > 0 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}
	}
	c.logger.Debug("Invalidated cache prefix", zap.String("prefix", prefix))
	return nil
}

// Close не закрывает клиента: им владеет вызывающий код.
func (c *RedisCache) Close() error {
	return nil
}
