package prices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"stockgame/internal/metrics"
)

// ErrNoPrice means the feed has no usable (positive) price for a ticker.
var ErrNoPrice = errors.New("no price available")

type Feed interface {
	LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	LatestPrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error)
}

type Cache interface {
	Get(ctx context.Context, ticker string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, ticker string, price decimal.Decimal) error
}

// Service reads prices through an optional cache. Cache failures are logged
// and fall through to the feed; feed failures are returned to the caller.
type Service struct {
	feed  Feed
	cache Cache
	log   *slog.Logger
}

func NewService(feed Feed, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{feed: feed, cache: cache, log: logger}
}

func (s *Service) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, ticker)
		switch {
		case err != nil:
			metrics.PriceCacheTotal.WithLabelValues("error").Inc()
			s.log.Warn("price cache read failed", "ticker", ticker, "err", err)
		case ok:
			metrics.PriceCacheTotal.WithLabelValues("hit").Inc()
			return p, nil
		default:
			metrics.PriceCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	p, err := s.feed.LatestPrice(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
	}
	s.store(ctx, ticker, p)
	return p, nil
}

// Refresh pulls fresh prices for tickers into the cache and returns how many
// were stored.
func (s *Service) Refresh(ctx context.Context, tickers []string) (int, error) {
	if len(tickers) == 0 {
		return 0, nil
	}
	quotes, err := s.feed.LatestPrices(ctx, tickers)
	if err != nil {
		return 0, err
	}
	n := 0
	for ticker, p := range quotes {
		if !p.IsPositive() {
			continue
		}
		s.store(ctx, ticker, p)
		n++
	}
	return n, nil
}

func (s *Service) store(ctx context.Context, ticker string, p decimal.Decimal) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, ticker, p); err != nil {
		s.log.Warn("price cache write failed", "ticker", ticker, "err", err)
	}
}
