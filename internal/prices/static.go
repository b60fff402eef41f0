package prices

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticFeed serves prices from memory. Unknown tickers quote zero.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	err    error
}

func NewStaticFeed(prices map[string]decimal.Decimal) *StaticFeed {
	f := &StaticFeed{prices: map[string]decimal.Decimal{}}
	for t, p := range prices {
		f.prices[strings.ToUpper(t)] = p
	}
	return f
}

func (f *StaticFeed) Set(ticker string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[strings.ToUpper(ticker)] = price
}

// Fail makes every subsequent lookup return err (nil clears it).
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *StaticFeed) LatestPrice(_ context.Context, ticker string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.prices[strings.ToUpper(ticker)], nil
}

func (f *StaticFeed) LatestPrices(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		if p, ok := f.prices[strings.ToUpper(t)]; ok {
			out[strings.ToUpper(t)] = p
		}
	}
	return out, nil
}
