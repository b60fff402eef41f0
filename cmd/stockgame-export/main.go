package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stockgame/internal/config"
	"stockgame/internal/db"
	"stockgame/internal/export"
	"stockgame/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadExportFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	gameID := flag.String("game", "", "game ID to export (required)")
	outDir := flag.String("out", cfg.OutDir, "output directory")
	flag.Parse()
	if *gameID == "" {
		fmt.Fprintln(os.Stderr, "usage: stockgame-export --game <id> [--out dir]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	sum, err := export.New(store.NewPostgresStore(pool), *outDir, logger).Game(ctx, *gameID)
	if err != nil {
		logger.Error("export failed", "game_id", *gameID, "err", err)
		os.Exit(1)
	}
	logger.Info("export complete", "dir", sum.Dir, "aggregates", sum.Aggregates, "positions", sum.Positions)
}
