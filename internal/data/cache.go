package data

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quantlab/stratbench/internal/telemetry"
	"github.com/quantlab/stratbench/pkg/feed"
	"github.com/quantlab/stratbench/pkg/logging"
	"github.com/quantlab/stratbench/pkg/market"
)

// Cache is the byte-level store behind CachedProvider. Implementations
// must treat failures as misses; caching is best-effort.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// MemoryCache is an in-process Cache for tests and cache-less deployments.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	val []byte
	exp time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.val, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.entries[key] = e
}

// RedisCache is a Cache backed by Redis. Unreachable Redis degrades to
// misses so the provider chain keeps working.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisCache connects a cache to the Redis instance at addr.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logging.GetLogger("rediscache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Redis get failed, treating as miss")
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, val, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Redis set failed")
	}
}

// Ping verifies the Redis connection, for health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// CachedProvider is a read-through decorator over any feed.Provider.
// Responses are cached as a JSON envelope keyed on the full query.
type CachedProvider struct {
	inner   feed.Provider
	cache   Cache
	ttl     time.Duration
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewCachedProvider wraps inner with the given cache and TTL. metrics
// may be nil; hits and misses then go unrecorded.
func NewCachedProvider(inner feed.Provider, cache Cache, ttl time.Duration, metrics *telemetry.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		metrics: metrics,
		logger:  logging.GetLogger("barcache"),
	}
}

// Bars serves from the cache when possible, otherwise delegates to the
// wrapped provider and stores the result.
func (p *CachedProvider) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	key := fmt.Sprintf("bars:%s:%s:%d:%d", symbol, timeframe, start.UnixMilli(), end.UnixMilli())

	if raw, ok := p.cache.Get(ctx, key); ok {
		var bars []market.Bar
		if err := json.Unmarshal(raw, &bars); err == nil {
			if p.metrics != nil {
				p.metrics.CacheHits.Inc()
			}
			p.logger.Debug().Str("key", key).Int("bars", len(bars)).Msg("Cache hit")
			return bars, nil
		}
		p.logger.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	}
	if p.metrics != nil {
		p.metrics.CacheMisses.Inc()
	}

	bars, err := p.inner.Bars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(bars); err == nil {
		p.cache.Set(ctx, key, raw, p.ttl)
	}
	return bars, nil
}

// Verify cache implementations satisfy their interfaces
var (
	_ Cache         = (*MemoryCache)(nil)
	_ Cache         = (*RedisCache)(nil)
	_ feed.Provider = (*CachedProvider)(nil)
)
