package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"stockgame/internal/config"
	"stockgame/internal/db"
	"stockgame/internal/prices"
	"stockgame/internal/store"
)

// The worker keeps the shared Redis price cache warm for every ticker that
// some player currently holds, so valuation reads rarely reach the feed.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("redis url invalid", "err", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	st := store.NewPostgresStore(pool)
	svc := prices.NewService(
		prices.NewAlpacaFeed(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.AlpacaDataURL),
		prices.NewRedisCache(rdb, cfg.PriceTTL),
		logger,
	)

	if cfg.RunOnce {
		if err := tick(ctx, st, svc, logger); err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.TickEvery.String(), "price_ttl", cfg.PriceTTL.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := tick(ctx, st, svc, logger); err != nil {
				logger.Error("price refresh failed", "err", err)
			}
		}
	}
}

func tick(ctx context.Context, st store.Store, svc *prices.Service, logger *slog.Logger) error {
	tickers, err := st.HeldTickers(ctx)
	if err != nil {
		return err
	}
	if len(tickers) == 0 {
		logger.Debug("no held tickers")
		return nil
	}
	n, err := svc.Refresh(ctx, tickers)
	if err != nil {
		return err
	}
	logger.Info("price refresh complete", "held", len(tickers), "updated", n)
	return nil
}
