package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgame/internal/game"
	"stockgame/internal/live"
	"stockgame/internal/model"
	"stockgame/internal/prices"
	"stockgame/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []live.Event
}

func (p *recordingPublisher) Publish(ev live.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fixture struct {
	engine *Engine
	games  *game.Service
	store  *store.MemoryStore
	feed   *prices.StaticFeed
	clk    *clock
	pub    *recordingPublisher
	game   *model.Game
	player *model.Player
	stock  *model.Stock
}

// newFixture builds an active game with one player holding 100000 in
// buying power and AAPL quoted at 80.
func newFixture(t require.TestingT) *fixture {
	ctx := context.Background()
	st := store.NewMemoryStore()
	clk := &clock{t: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	games := game.NewService(st, nil, nil).WithClock(clk.now)

	g, p, err := games.CreateGame(ctx, game.CreateGameInput{
		UserID:  "user-1",
		Name:    "Test League",
		StartAt: clk.t.Add(-time.Hour),
		EndAt:   clk.t.Add(72 * time.Hour),
	})
	require.NoError(t, err)

	stock := &model.Stock{ID: "stock-aapl", Ticker: "AAPL", Name: "Apple Inc.", Image: "aapl.png"}
	require.NoError(t, st.UpsertStock(ctx, stock))

	feed := prices.NewStaticFeed(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(80)})
	pub := &recordingPublisher{}
	engine := NewEngine(st, games, prices.NewService(feed, nil, nil), pub, nil).WithClock(clk.now)

	return &fixture{
		engine: engine,
		games:  games,
		store:  st,
		feed:   feed,
		clk:    clk,
		pub:    pub,
		game:   g,
		player: p,
		stock:  stock,
	}
}

func qty(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func aapl() InstrumentRef { return InstrumentRef{Ticker: "AAPL"} }

func (f *fixture) buy(t *testing.T, q *decimal.Decimal) *Receipt {
	t.Helper()
	r, err := f.engine.Buy(context.Background(), f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: q})
	require.NoError(t, err)
	return r
}

func (f *fixture) buyingPower(t require.TestingT) decimal.Decimal {
	p, err := f.store.GetPlayerByID(context.Background(), f.player.ID)
	require.NoError(t, err)
	return p.BuyingPower
}

func (f *fixture) position(t require.TestingT) (decimal.Decimal, bool) {
	positions, err := f.store.ListPositions(context.Background(), f.player.ID)
	require.NoError(t, err)
	for _, p := range positions {
		if p.StockID == f.stock.ID {
			return p.Quantity, true
		}
	}
	return decimal.Zero, false
}

func (f *fixture) aggregates(t require.TestingT, res model.Resolution) []model.AggregatePosition {
	rows, err := f.store.ListAggregatePositions(context.Background(), res, f.player.ID, time.Time{})
	require.NoError(t, err)
	return rows
}

func (f *fixture) orders(t require.TestingT) []model.Order {
	rows, err := f.store.ListOrders(context.Background(), f.player.ID)
	require.NoError(t, err)
	return rows
}

func (f *fixture) history(t require.TestingT) []model.HistoricalPosition {
	rows, err := f.store.ListHistoricalPositions(context.Background(), f.player.ID, "", time.Time{})
	require.NoError(t, err)
	return rows
}

func assertDec(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, got.Equal(decimal.NewFromInt(want)), "want %d got %s", want, got)
}

func TestBuySellScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.buy(t, qty(1))
	assertDec(t, 99_920, r.CurrentBuyingPower)
	assertDec(t, 80, r.Notional)
	assertDec(t, 80, r.BoughtAt)
	assert.Equal(t, model.OrderBuy, r.Type)
	assert.Equal(t, model.OrderCompleted, r.Status)
	assert.Equal(t, "Apple Inc.", r.Name)
	assert.Equal(t, "aapl.png", r.Image)
	held, _ := f.position(t)
	assertDec(t, 1, held)
	assertDec(t, 80, f.aggregates(t, model.ResolutionRaw)[0].Value)

	f.buy(t, qty(2))
	held, _ = f.position(t)
	assertDec(t, 3, held)
	assertDec(t, 99_760, f.buyingPower(t))
	assertDec(t, 240, f.aggregates(t, model.ResolutionRaw)[1].Value)

	r, err := f.engine.Sell(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(2)})
	require.NoError(t, err)
	assert.Equal(t, model.OrderSell, r.Type)
	held, _ = f.position(t)
	assertDec(t, 1, held)
	assertDec(t, 99_920, f.buyingPower(t))
	assertDec(t, 80, f.aggregates(t, model.ResolutionRaw)[2].Value)

	r, err = f.engine.SellAll(ctx, f.game.ID, "user-1", InstrumentRef{StockID: f.stock.ID})
	require.NoError(t, err)
	assertDec(t, 1, r.Quantity)
	_, ok := f.position(t)
	assert.False(t, ok, "position row is deleted on liquidation")
	assertDec(t, 100_000, f.buyingPower(t))
	raw := f.aggregates(t, model.ResolutionRaw)
	require.Len(t, raw, 4)
	assertDec(t, 0, raw[3].Value)

	assert.Len(t, f.orders(t), 4)
	assert.Len(t, f.history(t), 4)
	_, err = f.store.GetCostBasis(ctx, model.CostBasisTotal, f.player.ID, f.stock.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, f.pub.events, 4)
	assert.Equal(t, "AAPL", f.pub.events[0].Ticker)
}

func TestValidationRejectsBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name string
		req  OrderRequest
		want error
	}{
		{"both amounts", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1), Notional: qty(80)}, ErrNotionalAndQuantity},
		{"no amount", OrderRequest{InstrumentRef: aapl()}, ErrAmountRequired},
		{"zero quantity", OrderRequest{InstrumentRef: aapl(), Quantity: qty(0)}, ErrNonPositiveAmount},
		{"negative notional", OrderRequest{InstrumentRef: aapl(), Notional: qty(-5)}, ErrNonPositiveAmount},
		{"no instrument", OrderRequest{Quantity: qty(1)}, ErrInstrumentRef},
		{"both instruments", OrderRequest{InstrumentRef: InstrumentRef{StockID: "stock-aapl", Ticker: "AAPL"}, Quantity: qty(1)}, ErrInstrumentRef},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.Buy(context.Background(), f.game.ID, "user-1", tc.req)
			require.ErrorIs(t, err, tc.want)
			_, err = f.engine.Sell(context.Background(), f.game.ID, "user-1", tc.req)
			require.ErrorIs(t, err, tc.want)

			_, ok := f.position(t)
			assert.False(t, ok)
			assert.Empty(t, f.orders(t))
			assert.Empty(t, f.aggregates(t, model.ResolutionRaw))
			assertDec(t, 100_000, f.buyingPower(t))
		})
	}
}

func TestRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not a player", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Buy(ctx, f.game.ID, "stranger", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1)})
		require.ErrorIs(t, err, game.ErrNotPlayer)
	})

	t.Run("game over", func(t *testing.T) {
		f := newFixture(t)
		f.clk.advance(100 * time.Hour)
		_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1)})
		require.ErrorIs(t, err, game.ErrGameNotActive)
		f.games.Wait()
	})

	t.Run("unknown ticker", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: InstrumentRef{Ticker: "ZZZZ"}, Quantity: qty(1)})
		require.ErrorIs(t, err, ErrStockNotFound)
	})

	t.Run("no price", func(t *testing.T) {
		f := newFixture(t)
		f.feed.Set("AAPL", decimal.Zero)
		_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1)})
		require.ErrorIs(t, err, ErrStockNotFound)
	})

	t.Run("feed failure aborts", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("feed down")
		f.feed.Fail(boom)
		_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1)})
		require.ErrorIs(t, err, boom)
		assert.Empty(t, f.orders(t))
	})

	t.Run("insufficient buying power", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1251)})
		require.ErrorIs(t, err, ErrInsufficientBuyingPower)
		_, ok := f.position(t)
		assert.False(t, ok)
		assert.Empty(t, f.orders(t))
		assert.Empty(t, f.history(t))
		assertDec(t, 100_000, f.buyingPower(t))
	})

	t.Run("sell without position", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Sell(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1)})
		require.ErrorIs(t, err, ErrPositionNotFound)
		_, err = f.engine.SellAll(ctx, f.game.ID, "user-1", aapl())
		require.ErrorIs(t, err, ErrPositionNotFound)
	})

	t.Run("sell more than held", func(t *testing.T) {
		f := newFixture(t)
		f.buy(t, qty(2))
		_, err := f.engine.Sell(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(3)})
		require.ErrorIs(t, err, ErrInsufficientStock)
		_, err = f.engine.Sell(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Notional: qty(161)})
		require.ErrorIs(t, err, ErrInsufficientStock)
		held, _ := f.position(t)
		assertDec(t, 2, held)
		assert.Len(t, f.orders(t), 1)
	})
}

func TestBuyExactBuyingPower(t *testing.T) {
	f := newFixture(t)
	r := f.buy(t, qty(1250))
	assertDec(t, 0, r.CurrentBuyingPower)
}

func TestNotionalBuy(t *testing.T) {
	f := newFixture(t)
	r, err := f.engine.Buy(context.Background(), f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Notional: qty(100)})
	require.NoError(t, err)
	assert.True(t, r.Quantity.Equal(decimal.RequireFromString("1.25")))
	assertDec(t, 100, r.Notional)
	assertDec(t, 99_900, r.CurrentBuyingPower)
}

func TestNotionalBuyOfEntireBuyingPower(t *testing.T) {
	f := newFixture(t)
	f.feed.Set("AAPL", decimal.NewFromInt(6))

	r, err := f.engine.Buy(context.Background(), f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Notional: qty(100_000)})
	require.NoError(t, err)
	assert.True(t, r.Quantity.Equal(decimal.RequireFromString("16666.66666666")), r.Quantity.String())
	assert.True(t, r.Notional.LessThanOrEqual(decimal.NewFromInt(100_000)))
	assert.True(t, r.CurrentBuyingPower.Equal(decimal.RequireFromString("0.00000004")), r.CurrentBuyingPower.String())

	held, ok := f.position(t)
	require.True(t, ok)
	assert.True(t, held.Equal(r.Quantity))
}

func TestNotionalSellLeavingDustLiquidates(t *testing.T) {
	f := newFixture(t)
	f.buy(t, qty(1))

	r, err := f.engine.Sell(context.Background(), f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Notional: dec("79.995")})
	require.NoError(t, err)
	assertDec(t, 1, r.Quantity)
	assertDec(t, 80, r.Notional)
	_, ok := f.position(t)
	assert.False(t, ok)
	assertDec(t, 100_000, f.buyingPower(t))
}

func TestNotionalSellAboveDustKeepsPosition(t *testing.T) {
	f := newFixture(t)
	f.buy(t, qty(1))

	r, err := f.engine.Sell(context.Background(), f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Notional: qty(40)})
	require.NoError(t, err)
	assert.True(t, r.Quantity.Equal(decimal.RequireFromString("0.5")))
	held, ok := f.position(t)
	require.True(t, ok)
	assert.True(t, held.Equal(decimal.RequireFromString("0.5")))
}

func TestBucketedSeriesFirstWriteWins(t *testing.T) {
	f := newFixture(t)

	f.buy(t, qty(1))
	f.clk.advance(2 * time.Minute)
	f.buy(t, qty(2))

	minute := f.aggregates(t, model.ResolutionMinute)
	require.Len(t, minute, 1, "second trade in the same five-minute bucket is not recorded")
	assertDec(t, 80, minute[0].Value)

	f.clk.advance(4 * time.Minute)
	f.buy(t, qty(1))

	minute = f.aggregates(t, model.ResolutionMinute)
	require.Len(t, minute, 2)
	assertDec(t, 320, minute[1].Value)
	hour := f.aggregates(t, model.ResolutionHour)
	require.Len(t, hour, 1)
	assertDec(t, 80, hour[0].Value)
	assert.Len(t, f.aggregates(t, model.ResolutionDay), 1)
	assert.Len(t, f.aggregates(t, model.ResolutionRaw), 3)
}

func TestAggregateTracksEveryStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertStock(ctx, &model.Stock{ID: "stock-ko", Ticker: "KO", Name: "Coca-Cola"}))
	f.feed.Set("KO", decimal.NewFromInt(60))

	f.buy(t, qty(1))
	_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: InstrumentRef{StockID: "stock-ko"}, Quantity: qty(2)})
	require.NoError(t, err)

	raw := f.aggregates(t, model.ResolutionRaw)
	require.Len(t, raw, 2)
	assertDec(t, 200, raw[1].Value)

	var sum int64
	latest := map[string]int64{}
	for _, h := range f.history(t) {
		latest[h.StockID] = h.ValueMilli
	}
	for _, v := range latest {
		sum += v
	}
	assert.True(t, model.FromMilli(sum).Equal(raw[1].Value))
}

func TestSellAboveCostClampsCumulativeAndDropsCostBasis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.buy(t, qty(2))

	f.feed.Set("AAPL", decimal.NewFromInt(200))
	_, err := f.engine.Sell(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1)})
	require.NoError(t, err)

	held, ok := f.position(t)
	require.True(t, ok)
	assertDec(t, 1, held)
	hist := f.history(t)
	assert.Equal(t, int64(0), hist[len(hist)-1].ValueMilli)
	raw := f.aggregates(t, model.ResolutionRaw)
	assertDec(t, 0, raw[len(raw)-1].Value)
	assertDec(t, 100_040, f.buyingPower(t))

	_, err = f.store.GetCostBasis(ctx, model.CostBasisTotal, f.player.ID, f.stock.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetCostBasis(ctx, model.CostBasisToday, f.player.ID, f.stock.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCostBasisAveragesAndResetsDaily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.buy(t, qty(1))
	f.feed.Set("AAPL", decimal.NewFromInt(100))
	f.buy(t, qty(1))

	total, err := f.store.GetCostBasis(ctx, model.CostBasisTotal, f.player.ID, f.stock.ID)
	require.NoError(t, err)
	assertDec(t, 90, total.AvgPrice)
	assertDec(t, 2, total.NumBuys)
	today, err := f.store.GetCostBasis(ctx, model.CostBasisToday, f.player.ID, f.stock.ID)
	require.NoError(t, err)
	assertDec(t, 90, today.AvgPrice)

	f.clk.advance(24 * time.Hour)
	f.buy(t, qty(1))

	total, err = f.store.GetCostBasis(ctx, model.CostBasisTotal, f.player.ID, f.stock.ID)
	require.NoError(t, err)
	assert.True(t, total.AvgPrice.Equal(decimal.RequireFromString("93.333333")), total.AvgPrice.String())
	assertDec(t, 3, total.NumBuys)
	today, err = f.store.GetCostBasis(ctx, model.CostBasisToday, f.player.ID, f.stock.ID)
	require.NoError(t, err)
	assertDec(t, 100, today.AvgPrice)
	assertDec(t, 1, today.NumBuys)
}

func TestCostBasisWeighsBuysByQuantity(t *testing.T) {
	f := newFixture(t)

	f.buy(t, qty(1))
	f.feed.Set("AAPL", decimal.NewFromInt(100))
	f.buy(t, qty(3))

	total, err := f.store.GetCostBasis(context.Background(), model.CostBasisTotal, f.player.ID, f.stock.ID)
	require.NoError(t, err)
	assertDec(t, 95, total.AvgPrice)
	assertDec(t, 4, total.NumBuys)
}

func TestConcurrentBuysNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.SetBuyingPower(ctx, f.player.ID, decimal.NewFromInt(1000))
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	filled := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(1)})
			if err == nil {
				mu.Lock()
				filled++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrInsufficientBuyingPower)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 12, filled)
	assertDec(t, 40, f.buyingPower(t))
	held, _ := f.position(t)
	assertDec(t, 12, held)
}
