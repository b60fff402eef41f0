// Package export dumps a game's trading history to Parquet for offline
// analysis.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockgame/internal/model"
	"stockgame/internal/store"
)

type AggregateRecord struct {
	PlayerID  string  `parquet:"player_id"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Value     float64 `parquet:"value"`
}

type PositionRecord struct {
	PlayerID   string  `parquet:"player_id"`
	StockID    string  `parquet:"stock_id"`
	Ticker     string  `parquet:"ticker"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"`
	Invested   float64 `parquet:"invested"`
	StockPrice float64 `parquet:"stock_price"`
}

type OrderRecord struct {
	ID        string  `parquet:"id"`
	PlayerID  string  `parquet:"player_id"`
	StockID   string  `parquet:"stock_id"`
	Ticker    string  `parquet:"ticker"`
	Side      string  `parquet:"side"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Quantity  float64 `parquet:"quantity"`
	Price     float64 `parquet:"price"`
	Value     float64 `parquet:"value"`
}

type Summary struct {
	Players    int
	Aggregates int
	Positions  int
	Orders     int
	Dir        string
}

type Exporter struct {
	st  store.Store
	dir string
	log *slog.Logger
}

func New(st store.Store, dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{st: st, dir: dir, log: logger}
}

// Game writes aggregate.parquet, positions.parquet and orders.parquet under
// <dir>/<gameID>/, one row per stored sample or order across all players.
func (e *Exporter) Game(ctx context.Context, gameID string) (Summary, error) {
	if _, err := e.st.GetGame(ctx, gameID); err != nil {
		return Summary{}, fmt.Errorf("game %s: %w", gameID, err)
	}
	players, err := e.st.ListPlayers(ctx, gameID)
	if err != nil {
		return Summary{}, err
	}
	tickers, err := e.tickers(ctx)
	if err != nil {
		return Summary{}, err
	}

	var (
		aggregates []AggregateRecord
		positions  []PositionRecord
		orders     []OrderRecord
	)
	for _, p := range players {
		rows, err := e.st.ListAggregatePositions(ctx, model.ResolutionRaw, p.ID, time.Time{})
		if err != nil {
			return Summary{}, err
		}
		for _, a := range rows {
			aggregates = append(aggregates, AggregateRecord{
				PlayerID:  a.PlayerID,
				Timestamp: a.CreatedAt.UnixMilli(),
				Value:     a.Value.InexactFloat64(),
			})
		}

		hist, err := e.st.ListHistoricalPositions(ctx, p.ID, "", time.Time{})
		if err != nil {
			return Summary{}, err
		}
		for _, h := range hist {
			positions = append(positions, PositionRecord{
				PlayerID:   h.PlayerID,
				StockID:    h.StockID,
				Ticker:     tickers[h.StockID],
				Timestamp:  h.CreatedAt.UnixMilli(),
				Invested:   model.FromMilli(h.ValueMilli).InexactFloat64(),
				StockPrice: model.FromMilli(h.PriceMilli).InexactFloat64(),
			})
		}

		list, err := e.st.ListOrders(ctx, p.ID)
		if err != nil {
			return Summary{}, err
		}
		for _, o := range list {
			orders = append(orders, OrderRecord{
				ID:        o.ID,
				PlayerID:  o.PlayerID,
				StockID:   o.StockID,
				Ticker:    tickers[o.StockID],
				Side:      string(o.Type),
				Timestamp: o.CreatedAt.UnixMilli(),
				Quantity:  o.Quantity.InexactFloat64(),
				Price:     o.Price.InexactFloat64(),
				Value:     o.Value.InexactFloat64(),
			})
		}
	}

	dir := filepath.Join(e.dir, gameID)
	if err := writeParquetFile(filepath.Join(dir, "aggregate.parquet"), aggregates); err != nil {
		return Summary{}, err
	}
	if err := writeParquetFile(filepath.Join(dir, "positions.parquet"), positions); err != nil {
		return Summary{}, err
	}
	if err := writeParquetFile(filepath.Join(dir, "orders.parquet"), orders); err != nil {
		return Summary{}, err
	}

	out := Summary{
		Players:    len(players),
		Aggregates: len(aggregates),
		Positions:  len(positions),
		Orders:     len(orders),
		Dir:        dir,
	}
	e.log.Info("game exported", "game_id", gameID, "players", out.Players, "orders", out.Orders, "dir", dir)
	return out, nil
}

func (e *Exporter) tickers(ctx context.Context) (map[string]string, error) {
	stocks, err := e.st.ListStocks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(stocks))
	for _, s := range stocks {
		out[s.ID] = s.Ticker
	}
	return out, nil
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}
