package visibility

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
)

const generationKey = "visibility:generation"

// Cache memoizes visibility results in two tiers: an in-process expirable
// LRU (L1) and redis (L2, shared across instances). Keys are stamped with a
// generation counter held in redis; Invalidate bumps the generation, which
// orphans every older key at once. L1 entries from other instances age out
// within the TTL, which bounds the staleness window after an invalidation.
type Cache struct {
	l1      *lru.LRU[string, bool]
	redis   *redis.Client // nil when no L2 is configured
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCache builds the cache from storage config. redisClient may be nil, in
// which case only the L1 tier is used.
func NewCache(cfg storage.Config, redisClient *redis.Client, metrics *observability.Metrics) *Cache {
	size := cfg.L1CacheSize
	if size <= 0 {
		size = 1024
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{
		l1:      lru.NewLRU[string, bool](size, nil, ttl),
		redis:   redisClient,
		ttl:     ttl,
		metrics: metrics,
	}
}

// NewRedisClient creates a redis client from storage config and verifies
// connectivity.
func NewRedisClient(cfg storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// Get returns the memoized visibility for a collection, and whether an entry
// was found. Redis failures count as misses; reads fall through to the
// store.
func (c *Cache) Get(ctx context.Context, collectionID int64) (bool, bool) {
	gen := c.generation(ctx)
	key := cacheKey(gen, collectionID)

	if restricted, ok := c.l1.Get(key); ok {
		c.recordHit("l1")
		return restricted, true
	}
	c.recordMiss("l1")

	if c.redis == nil {
		return false, false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		// redis.Nil and transport errors both degrade to a miss
		c.recordMiss("l2")
		return false, false
	}
	c.recordHit("l2")

	restricted := val == "1"
	c.l1.Add(key, restricted)
	return restricted, true
}

// Set memoizes the visibility result in both tiers.
func (c *Cache) Set(ctx context.Context, collectionID int64, restricted bool) {
	gen := c.generation(ctx)
	key := cacheKey(gen, collectionID)

	c.l1.Add(key, restricted)

	if c.redis != nil {
		val := "0"
		if restricted {
			val = "1"
		}
		// Best effort; a failed write just means a future miss.
		c.redis.Set(ctx, key, val, c.ttl)
	}
}

// Invalidate drops every memoized result by bumping the shared generation
// and purging the local tier.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.l1.Purge()

	if c.redis == nil {
		return nil
	}
	if err := c.redis.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("failed to bump visibility cache generation: %w", err)
	}
	return nil
}

// generation reads the current cache generation. Without redis (or when the
// read fails) the generation is fixed at zero and Invalidate relies on the
// L1 purge plus TTL expiry.
func (c *Cache) generation(ctx context.Context) int64 {
	if c.redis == nil {
		return 0
	}
	val, err := c.redis.Get(ctx, generationKey).Result()
	if err != nil {
		return 0
	}
	gen, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return gen
}

func cacheKey(generation, collectionID int64) string {
	return fmt.Sprintf("visibility:%d:%d", generation, collectionID)
}

func (c *Cache) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.VisibilityCacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *Cache) recordMiss(tier string) {
	if c.metrics != nil {
		c.metrics.VisibilityCacheMissesTotal.WithLabelValues(tier).Inc()
	}
}
