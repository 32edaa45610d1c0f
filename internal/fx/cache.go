package fx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RateCache holds live quotes between lookups. A zero ttl means no expiry.
type RateCache interface {
	Get(ctx context.Context, pair string) (decimal.Decimal, bool)
	Set(ctx context.Context, pair string, rate decimal.Decimal, ttl time.Duration)
	Reset(ctx context.Context)
}

type cachedRate struct {
	rate      decimal.Decimal
	expiresAt time.Time
}

type MemoryCache struct {
	mu    sync.Mutex
	rates map[string]cachedRate
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		rates: make(map[string]cachedRate),
		now:   time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, pair string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.rates[pair]
	if !ok {
		return decimal.Zero, false
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.rates, pair)
		return decimal.Zero, false
	}
	return entry.rate, true
}

func (c *MemoryCache) Set(_ context.Context, pair string, rate decimal.Decimal, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cachedRate{rate: rate}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.rates[pair] = entry
}

func (c *MemoryCache) Reset(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = make(map[string]cachedRate)
}

const defaultRedisTimeout = 250 * time.Millisecond

// RedisCache shares quotes across server instances. Every call is bounded by
// its own timeout so an unreachable redis only costs that much of a
// conversion; the client must be built with ContextTimeoutEnabled.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRedisCache(client *redis.Client, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, prefix: "fx:rate:", timeout: defaultRedisTimeout, logger: logger}
}

func (c *RedisCache) WithTimeout(timeout time.Duration) *RedisCache {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, pair string) (decimal.Decimal, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+pair).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("fx cache read failed", "pair", pair, "error", err)
		}
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(val)
	if err != nil {
		c.logger.Warn("fx cache holds an unparsable rate", "pair", pair, "value", val)
		return decimal.Zero, false
	}
	return rate, true
}

func (c *RedisCache) Set(ctx context.Context, pair string, rate decimal.Decimal, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, c.prefix+pair, rate.String(), ttl).Err(); err != nil {
		c.logger.Warn("fx cache write failed", "pair", pair, "error", err)
	}
}

func (c *RedisCache) Reset(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("fx cache reset failed", "error", err)
	}
}
