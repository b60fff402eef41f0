package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockgame/internal/calendar"
	"stockgame/internal/model"
	"stockgame/internal/series"
	"stockgame/internal/store"
)

// appendSeries records the stock's new cumulative invested value and moves
// the portfolio aggregate by the same delta. The raw series gets a row for
// every trade; each bucketed series keeps only the first row per bucket.
func appendSeries(ctx context.Context, tx store.Tx, playerID string, q quote, prevMilli, nextMilli int64, now time.Time) error {
	err := tx.InsertHistoricalPosition(ctx, &model.HistoricalPosition{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		StockID:    q.stock.ID,
		ValueMilli: nextMilli,
		PriceMilli: model.ToMilli(q.price),
		CreatedAt:  now,
	})
	if err != nil {
		return err
	}

	prevAgg := decimal.Zero
	latest, err := tx.LatestAggregatePosition(ctx, model.ResolutionRaw, playerID)
	switch {
	case err == nil:
		prevAgg = latest.Value
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	value := decimal.Max(decimal.Zero, prevAgg.Add(model.FromMilli(nextMilli-prevMilli)))

	if err := tx.InsertAggregatePosition(ctx, model.ResolutionRaw, newAggregate(playerID, value, now)); err != nil {
		return err
	}
	for _, res := range model.BucketedResolutions {
		start, end := series.BucketBounds(res, now)
		exists, err := tx.HasAggregateBetween(ctx, res, playerID, start, end)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := tx.InsertAggregatePosition(ctx, res, newAggregate(playerID, value, now)); err != nil {
			return err
		}
	}
	return nil
}

func newAggregate(playerID string, value decimal.Decimal, now time.Time) *model.AggregatePosition {
	return &model.AggregatePosition{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Value:     value,
		CreatedAt: now,
	}
}

// updateCostBasis folds a buy into the lifetime and same-day averages. The
// same-day average restarts when its last update was on an earlier New York
// date.
func updateCostBasis(ctx context.Context, tx store.Tx, playerID, stockID string, price, qty decimal.Decimal, now time.Time) error {
	for _, kind := range []model.CostBasisKind{model.CostBasisTotal, model.CostBasisToday} {
		cb, err := tx.GetCostBasis(ctx, kind, playerID, stockID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			cb = nil
		case err != nil:
			return err
		}
		if cb != nil && kind == model.CostBasisToday && !calendar.SameDay(cb.UpdatedAt, now) {
			cb = nil
		}
		next := blend(cb, price, qty)
		next.PlayerID = playerID
		next.StockID = stockID
		next.UpdatedAt = now
		if err := tx.SaveCostBasis(ctx, kind, next); err != nil {
			return err
		}
	}
	return nil
}

// blend returns the volume-weighted average after buying qty at price. Cost
// basis is the average price paid over all shares bought, so each buy weighs
// by its quantity rather than counting once.
func blend(cb *model.CostBasis, price, qty decimal.Decimal) *model.CostBasis {
	if cb == nil || !cb.NumBuys.IsPositive() {
		return &model.CostBasis{AvgPrice: price, NumBuys: qty}
	}
	count := cb.NumBuys.Add(qty)
	avg := cb.AvgPrice.Mul(cb.NumBuys).Add(price.Mul(qty)).DivRound(count, 6)
	return &model.CostBasis{AvgPrice: avg, NumBuys: count}
}
