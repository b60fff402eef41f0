package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"stockgame/internal/api"
	"stockgame/internal/auth"
	"stockgame/internal/calendar"
	"stockgame/internal/config"
	"stockgame/internal/db"
	"stockgame/internal/game"
	"stockgame/internal/live"
	"stockgame/internal/notify"
	"stockgame/internal/orders"
	"stockgame/internal/prices"
	"stockgame/internal/series"
	"stockgame/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	priceSvc, closePrices, err := openPrices(cfg, logger)
	if err != nil {
		logger.Error("price feed init failed", "err", err)
		os.Exit(1)
	}
	defer closePrices()

	var cal calendar.Calendar = calendar.NewStatic(calendar.USHolidays2026...)
	if cfg.AlpacaKey != "" {
		cal = calendar.NewAlpaca(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.AlpacaBaseURL, logger)
	}

	notifier, err := openNotifier(cfg, logger)
	if err != nil {
		logger.Error("notifier init failed", "err", err)
		os.Exit(1)
	}

	hub := live.NewHub(logger)
	go hub.Run()

	games := game.NewService(st, notifier, logger)
	if cfg.SeedStocks {
		if err := games.SeedStocks(ctx); err != nil {
			logger.Error("seed stocks failed", "err", err)
			os.Exit(1)
		}
	}

	engine := orders.NewEngine(st, games, priceSvc, hub, logger)
	server := api.New(cfg, logger, auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey), api.Services{
		Games:     games,
		Orders:    engine,
		Store:     st,
		Prices:    priceSvc,
		Series:    series.NewReader(st, cal, logger),
		Valuation: series.NewValuation(st),
		Hub:       hub,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		hub.Close()
	}()

	logger.Info("stockgame api listening", "addr", cfg.Addr, "default_buying_power", decimal.NewFromFloat(cfg.DefaultBuyingPower).String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	games.Wait()
	logger.Info("stockgame api stopped")
}

// openStore uses Postgres when DATABASE_URL is set and an in-process store
// otherwise, which keeps nothing across restarts.
func openStore(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func openPrices(cfg config.APIConfig, logger *slog.Logger) (*prices.Service, func(), error) {
	var feed prices.Feed
	if cfg.AlpacaKey != "" {
		feed = prices.NewAlpacaFeed(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.AlpacaDataURL)
	} else {
		logger.Warn("Alpaca keys not set; serving static seed prices")
		feed = prices.NewStaticFeed(game.SeedPrices())
	}

	if cfg.RedisURL == "" {
		return prices.NewService(feed, prices.NewMemoryCache(cfg.PriceTTL), logger), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	closeFn := func() { _ = rdb.Close() }
	return prices.NewService(feed, prices.NewRedisCache(rdb, cfg.PriceTTL), logger), closeFn, nil
}

func openNotifier(cfg config.APIConfig, logger *slog.Logger) (notify.Notifier, error) {
	var out notify.Multi
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	if cfg.DiscordToken != "" {
		dc, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	if len(out) == 0 {
		return notify.Nop{}, nil
	}
	return out, nil
}
