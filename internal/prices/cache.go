package prices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyPrefix = "price:"

// RedisCache keeps last-trade prices under price:<TICKER> with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+ticker).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached price for %s: %w", ticker, err)
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, ticker string, price decimal.Decimal) error {
	return c.rdb.Set(ctx, keyPrefix+ticker, price.String(), c.ttl).Err()
}

type memoryEntry struct {
	price   decimal.Decimal
	expires time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, ticker string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ticker]
	if !ok {
		return decimal.Zero, false, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, ticker)
		return decimal.Zero, false, nil
	}
	return e.price, true, nil
}

func (c *MemoryCache) Set(_ context.Context, ticker string, price decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ticker] = memoryEntry{price: price, expires: c.now().Add(c.ttl)}
	return nil
}
