package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceReadsThroughCache(t *testing.T) {
	feed := NewStaticFeed(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(80)})
	cache := NewMemoryCache(time.Minute)
	svc := NewService(feed, cache, nil)
	ctx := context.Background()

	p, err := svc.Price(ctx, "aapl")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(80)))

	feed.Set("AAPL", decimal.NewFromInt(90))
	p, err = svc.Price(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(80)), "cached price served within ttl")
}

func TestPriceExpiredCacheRefetches(t *testing.T) {
	feed := NewStaticFeed(map[string]decimal.Decimal{"MSFT": decimal.NewFromInt(10)})
	cache := NewMemoryCache(time.Minute)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	svc := NewService(feed, cache, nil)
	ctx := context.Background()

	_, err := svc.Price(ctx, "MSFT")
	require.NoError(t, err)
	feed.Set("MSFT", decimal.NewFromInt(12))
	now = now.Add(2 * time.Minute)

	p, err := svc.Price(ctx, "MSFT")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(12)))
}

func TestPriceNonPositiveIsNoPrice(t *testing.T) {
	svc := NewService(NewStaticFeed(nil), nil, nil)
	_, err := svc.Price(context.Background(), "ZZZZ")
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestPriceFeedErrorPropagates(t *testing.T) {
	feed := NewStaticFeed(nil)
	boom := errors.New("feed down")
	feed.Fail(boom)
	svc := NewService(feed, NewMemoryCache(time.Minute), nil)
	_, err := svc.Price(context.Background(), "AAPL")
	require.ErrorIs(t, err, boom)
}

func TestRefreshStoresPositivePrices(t *testing.T) {
	feed := NewStaticFeed(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(80),
		"DEAD": decimal.Zero,
	})
	cache := NewMemoryCache(time.Minute)
	svc := NewService(feed, cache, nil)

	n, err := svc.Refresh(context.Background(), []string{"AAPL", "DEAD", "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := cache.Get(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, ok)
}
