package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"discord-invite-tracker/internal/redis"

	"github.com/dgraph-io/ristretto"
	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// Cache is a two-layer cache: ristretto in memory (L1) and Redis (L2).
// Values are stored in Redis as JSON. Misses on both layers go to the
// caller's fetch function, deduplicated per key.
type Cache[T any] struct {
	l1           *ristretto.Cache
	l2           *redis.Client
	prefix       string
	ttl          time.Duration
	singleflight singleflight.Group

	l1Hits   atomic.Uint64
	l1Misses atomic.Uint64
	l2Hits   atomic.Uint64
	l2Misses atomic.Uint64
}

type Config struct {
	Prefix        string        // Redis key prefix, e.g. "profile:"
	L1MaxItems    int64         // Max entries held in memory (default: 50k)
	L1NumCounters int64         // Number of keys to track frequency (default: 10x L1MaxItems)
	TTL           time.Duration // Entry lifetime in both layers
}

// New creates a cache. l2 may be nil to run memory-only.
func New[T any](l2 *redis.Client, cfg Config) (*Cache[T], error) {
	if cfg.L1MaxItems == 0 {
		cfg.L1MaxItems = 50000
	}
	if cfg.L1NumCounters == 0 {
		cfg.L1NumCounters = cfg.L1MaxItems * 10
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}

	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.L1NumCounters,
		MaxCost:     cfg.L1MaxItems,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	return &Cache[T]{
		l1:     l1,
		l2:     l2,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}, nil
}

// Peek looks a key up in L1 then L2 without fetching.
func (c *Cache[T]) Peek(ctx context.Context, key string) (T, bool) {
	if val, found := c.l1.Get(key); found {
		if v, ok := val.(T); ok {
			c.l1Hits.Add(1)
			return v, true
		}
	}
	c.l1Misses.Add(1)

	var zero T
	if c.l2 == nil {
		return zero, false
	}
	raw, err := c.l2.GetBytes(ctx, c.prefix+key)
	if err != nil || len(raw) == 0 {
		c.l2Misses.Add(1)
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.l2Misses.Add(1)
		return zero, false
	}
	c.l2Hits.Add(1)
	c.l1.SetWithTTL(key, v, 1, c.ttl)
	return v, true
}

// Get returns the cached value or loads it with fetch. Fetch errors are
// returned and nothing is cached.
func (c *Cache[T]) Get(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Peek(ctx, key); ok {
		return v, nil
	}

	val, err, _ := c.singleflight.Do(key, func() (interface{}, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

// Set stores a value in both layers. L2 errors are ignored.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) {
	c.l1.SetWithTTL(key, value, 1, c.ttl)

	if c.l2 != nil {
		if raw, err := json.Marshal(value); err == nil {
			_ = c.l2.Set(ctx, c.prefix+key, raw, c.ttl)
		}
	}
}

// Delete removes a key from all cache layers
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	c.l1.Del(key)
	if c.l2 != nil {
		_ = c.l2.Del(ctx, c.prefix+key)
	}
}

// GetMetrics returns cache performance metrics
func (c *Cache[T]) GetMetrics() Metrics {
	l1Metrics := c.l1.Metrics

	l1Total := c.l1Hits.Load() + c.l1Misses.Load()
	l2Total := c.l2Hits.Load() + c.l2Misses.Load()

	var l1HitRate, l2HitRate float64
	if l1Total > 0 {
		l1HitRate = float64(c.l1Hits.Load()) / float64(l1Total)
	}
	if l2Total > 0 {
		l2HitRate = float64(c.l2Hits.Load()) / float64(l2Total)
	}

	return Metrics{
		L1Hits:        c.l1Hits.Load(),
		L1Misses:      c.l1Misses.Load(),
		L1HitRate:     l1HitRate,
		L2Hits:        c.l2Hits.Load(),
		L2Misses:      c.l2Misses.Load(),
		L2HitRate:     l2HitRate,
		L1KeysAdded:   l1Metrics.KeysAdded(),
		L1KeysEvicted: l1Metrics.KeysEvicted(),
	}
}

// Metrics holds cache performance data
type Metrics struct {
	L1Hits        uint64
	L1Misses      uint64
	L1HitRate     float64
	L2Hits        uint64
	L2Misses      uint64
	L2HitRate     float64
	L1KeysAdded   uint64
	L1KeysEvicted uint64
}

func (c *Cache[T]) Close() {
	c.l1.Close()
}
