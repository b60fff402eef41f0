package series

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stockgame/internal/calendar"
	"stockgame/internal/model"
	"stockgame/internal/store"
)

type Point struct {
	Value     decimal.Decimal `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`
	PlayerID  string          `json:"playerId"`
}

type StockPoint struct {
	Value      decimal.Decimal `json:"value"`
	CreatedAt  time.Time       `json:"createdAt"`
	StockID    string          `json:"stockId"`
	Ticker     string          `json:"ticker"`
	StockPrice decimal.Decimal `json:"stockPrice"`
	PlayerID   string          `json:"playerId"`
}

// Reader serves chart series. Reads take no locks and see whatever has been
// committed when the rows are loaded.
type Reader struct {
	store store.Store
	cal   calendar.Calendar
	now   func() time.Time
	log   *slog.Logger
}

func NewReader(st store.Store, cal calendar.Calendar, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{store: st, cal: cal, now: time.Now, log: logger}
}

// WithClock replaces the reader's time source.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// AggregatePositions loads the window's bucketed rows once and returns a
// forward-filled sequence over them. Ranging over the result more than once
// yields the same points.
func (r *Reader) AggregatePositions(ctx context.Context, gameStart time.Time, playerID string, w Window, defaultBuyingPower decimal.Decimal) (iter.Seq[Point], error) {
	now := r.now()
	plan, err := PlanFor(ctx, r.cal, w, now, gameStart)
	if err != nil {
		return nil, err
	}
	ts, err := plan.Timestamps(ctx, r.cal, now)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.ListAggregatePositions(ctx, plan.Resolution, playerID, time.Time{})
	if err != nil {
		return nil, err
	}
	return Build(Input{
		PlayerID:  playerID,
		Times:     ts,
		Rows:      rows,
		GameStart: gameStart,
		Now:       now,
		Default:   defaultBuyingPower,
	}), nil
}

type Input struct {
	PlayerID  string
	Times     []time.Time
	Rows      []model.AggregatePosition // ascending by CreatedAt
	GameStart time.Time
	Now       time.Time
	Default   decimal.Decimal
}

// Build is the pure half of the reader: it trims generated timestamps to the
// game, and forward-fills each one from rows.
func Build(in Input) iter.Seq[Point] {
	times := make([]time.Time, 0, len(in.Times)+1)
	if calendar.SameDay(in.GameStart, in.Now) && !in.GameStart.After(in.Now) {
		times = append(times, in.GameStart)
	}
	for _, t := range in.Times {
		if t.Before(in.GameStart) {
			continue
		}
		if len(times) > 0 && !t.After(times[len(times)-1]) {
			continue
		}
		times = append(times, t)
	}
	lateNight := inLateNightWindow(in.Now)

	return func(yield func(Point) bool) {
		idx := -1
		for i, t := range times {
			for idx+1 < len(in.Rows) && !in.Rows[idx+1].CreatedAt.After(t) {
				idx++
			}
			var v decimal.Decimal
			switch {
			case len(in.Rows) == 0:
				v = in.Default
			case idx < 0:
				v = in.Rows[0].Value
			default:
				v = in.Rows[idx].Value
			}
			at := t
			if lateNight && i == len(times)-1 {
				at = in.Now
			}
			if !yield(Point{Value: v, CreatedAt: at, PlayerID: in.PlayerID}) {
				return
			}
		}
	}
}

// inLateNightWindow reports whether now is between 00:00 and 04:15 New York.
func inLateNightWindow(now time.Time) bool {
	return !now.Before(calendar.At(now, 0, 0)) && !now.After(calendar.At(now, 4, 15))
}

// StockPositions returns the raw per-stock series inside the window with
// values scaled back from thousandths of a dollar.
func (r *Reader) StockPositions(ctx context.Context, gameStart time.Time, playerID, stockID string, w Window) ([]StockPoint, error) {
	now := r.now()
	plan, err := PlanFor(ctx, r.cal, w, now, gameStart)
	if err != nil {
		return nil, err
	}
	since := plan.Base
	if w == All || since.Before(gameStart) {
		since = gameStart
	}
	rows, err := r.store.ListHistoricalPositions(ctx, playerID, stockID, since)
	if err != nil {
		return nil, err
	}

	tickers := map[string]string{}
	out := make([]StockPoint, 0, len(rows))
	for _, h := range rows {
		ticker, ok := tickers[h.StockID]
		if !ok {
			stock, err := r.store.GetStock(ctx, h.StockID)
			if err != nil {
				r.log.Warn("historical position references unknown stock", "stock_id", h.StockID, "err", err)
			} else {
				ticker = stock.Ticker
			}
			tickers[h.StockID] = ticker
		}
		out = append(out, StockPoint{
			Value:      model.FromMilli(h.ValueMilli),
			CreatedAt:  h.CreatedAt,
			StockID:    h.StockID,
			Ticker:     ticker,
			StockPrice: model.FromMilli(h.PriceMilli),
			PlayerID:   h.PlayerID,
		})
	}
	return out, nil
}
