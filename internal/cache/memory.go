package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plainhr/plain/internal/metrics"
)

type memoryEntry struct {
	key        string
	value      []byte
	expiresAt  time.Time
	staleUntil time.Time
}

// MemoryCache - TTL-кэш в памяти процесса. При переполнении вытесняется
// самая старая по вставке запись (FIFO). Повторный Set не меняет позицию ключа.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	staleGrace time.Duration
	now        func() time.Time
	logger     *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var _ Cache = (*MemoryCache)(nil)

// NewMemory создаёт кэш и запускает janitor, который раз в cleanupInterval
// удаляет записи с истёкшим stale grace. cleanupInterval <= 0 отключает janitor.
func NewMemory(maxEntries int, staleGrace, cleanupInterval time.Duration, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &MemoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		staleGrace: staleGrace,
		now:        time.Now,
		logger:     logger.Named("MemoryCache"),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	} else {
		close(c.done)
	}
	return c
}

func (c *MemoryCache) janitor(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := c.prune(); n > 0 {
				c.logger.Debug("Pruned expired cache entries", zap.Int("count", n))
			}
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*memoryEntry); !now.Before(e.staleUntil) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	e := el.Value.(*memoryEntry)
	now := c.now()
	if !now.Before(e.expiresAt) {
		if !now.Before(e.staleUntil) {
			c.removeLocked(el)
		}
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *MemoryCache) GetStale(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	e := el.Value.(*memoryEntry)
	if !c.now().Before(e.staleUntil) {
		c.removeLocked(el)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	buf := append([]byte(nil), value...)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value = buf
		e.expiresAt = now.Add(ttl)
		e.staleUntil = e.expiresAt.Add(c.staleGrace)
		return nil
	}

	if c.maxEntries > 0 {
		for c.order.Len() >= c.maxEntries {
			c.removeLocked(c.order.Front())
			metrics.CacheEvictions.Inc()
		}
	}
	e := &memoryEntry{key: key, value: buf, expiresAt: now.Add(ttl)}
	e.staleUntil = e.expiresAt.Add(c.staleGrace)
	c.entries[key] = c.order.PushBack(e)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if el, ok := c.entries[key]; ok {
			c.removeLocked(el)
		}
	}
	return nil
}

func (c *MemoryCache) DeletePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el)
		}
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*memoryEntry)
	delete(c.entries, e.key)
}
