package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgame/internal/model"
	"stockgame/internal/store"
)

func seed(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertStock(ctx, &model.Stock{ID: "stock-aapl", Ticker: "AAPL", Name: "Apple Inc."}))
	require.NoError(t, st.CreateGame(ctx, &model.Game{
		ID: "g1", Name: "Spring", InviteCode: "ABC123", StartAt: at, EndAt: at.Add(72 * time.Hour),
		DefaultBuyingPower: decimal.NewFromInt(100000), Status: model.GameActive, CreatedAt: at,
	}, &model.Player{ID: "p1", GameID: "g1", UserID: "u1", BuyingPower: decimal.NewFromInt(99840), CreatedAt: at}))

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertOrder(ctx, &model.Order{
			ID: "o1", GameID: "g1", PlayerID: "p1", StockID: "stock-aapl", Type: model.OrderBuy, Status: model.OrderCompleted,
			Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(80), Value: decimal.NewFromInt(160), CreatedAt: at,
		}); err != nil {
			return err
		}
		if err := tx.InsertHistoricalPosition(ctx, &model.HistoricalPosition{
			ID: "h1", PlayerID: "p1", StockID: "stock-aapl", ValueMilli: 160000, PriceMilli: 80000, CreatedAt: at,
		}); err != nil {
			return err
		}
		return tx.InsertAggregatePosition(ctx, model.ResolutionRaw, &model.AggregatePosition{
			ID: "a1", PlayerID: "p1", Value: decimal.NewFromInt(160), CreatedAt: at,
		})
	}))
	return st
}

func TestGameWritesParquetFiles(t *testing.T) {
	dir := t.TempDir()
	sum, err := New(seed(t), dir, nil).Game(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, Summary{Players: 1, Aggregates: 1, Positions: 1, Orders: 1, Dir: filepath.Join(dir, "g1")}, sum)

	ord, err := parquet.ReadFile[OrderRecord](filepath.Join(sum.Dir, "orders.parquet"))
	require.NoError(t, err)
	require.Len(t, ord, 1)
	assert.Equal(t, "AAPL", ord[0].Ticker)
	assert.Equal(t, "BUY", ord[0].Side)
	assert.InDelta(t, 160.0, ord[0].Value, 1e-9)

	pos, err := parquet.ReadFile[PositionRecord](filepath.Join(sum.Dir, "positions.parquet"))
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.InDelta(t, 160.0, pos[0].Invested, 1e-9)
	assert.InDelta(t, 80.0, pos[0].StockPrice, 1e-9)

	agg, err := parquet.ReadFile[AggregateRecord](filepath.Join(sum.Dir, "aggregate.parquet"))
	require.NoError(t, err)
	require.Len(t, agg, 1)
	assert.Equal(t, "p1", agg[0].PlayerID)
}

func TestGameUnknown(t *testing.T) {
	_, err := New(store.NewMemoryStore(), t.TempDir(), nil).Game(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
