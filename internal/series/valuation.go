package series

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stockgame/internal/model"
	"stockgame/internal/store"
)

type HoldingsValue struct {
	Value     *decimal.Decimal `json:"value"`
	CreatedAt *time.Time       `json:"createdAt"`
}

type HoldingsChange struct {
	TotalChange        decimal.Decimal `json:"totalChange"`
	TotalChangePercent decimal.Decimal `json:"totalChangePercent"`
	TodayChange        decimal.Decimal `json:"todayChange"`
	TodayChangePercent decimal.Decimal `json:"todayChangePercent"`
}

var hundred = decimal.NewFromInt(100)

// Valuation derives read-only holdings figures from the aggregate series.
type Valuation struct {
	store store.Store
	now   func() time.Time
}

func NewValuation(st store.Store) *Valuation {
	return &Valuation{store: st, now: time.Now}
}

func (v *Valuation) WithClock(now func() time.Time) *Valuation {
	v.now = now
	return v
}

func (v *Valuation) HoldingsValue(ctx context.Context, playerID string) (HoldingsValue, error) {
	latest, err := v.store.LatestAggregatePosition(ctx, model.ResolutionRaw, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return HoldingsValue{}, nil
	}
	if err != nil {
		return HoldingsValue{}, err
	}
	return HoldingsValue{Value: &latest.Value, CreatedAt: &latest.CreatedAt}, nil
}

func (v *Valuation) HoldingsChange(ctx context.Context, playerID string, defaultBuyingPower decimal.Decimal) (HoldingsChange, error) {
	rows, err := v.store.ListAggregatePositions(ctx, model.ResolutionDay, playerID, time.Time{})
	if err != nil {
		return HoldingsChange{}, err
	}
	return ComputeChange(rows, defaultBuyingPower, v.now()), nil
}

// ComputeChange works on day-bucket rows sorted ascending by CreatedAt.
func ComputeChange(rows []model.AggregatePosition, defaultBuyingPower decimal.Decimal, now time.Time) HoldingsChange {
	latestValue := defaultBuyingPower
	if len(rows) > 0 {
		latestValue = rows[len(rows)-1].Value
	}
	out := HoldingsChange{TotalChange: latestValue.Sub(defaultBuyingPower)}
	out.TotalChangePercent = percent(out.TotalChange, defaultBuyingPower)

	yesterday := now.AddDate(0, 0, -1)
	if len(rows) == 0 || rows[len(rows)-1].CreatedAt.Before(yesterday) {
		out.TodayChange = decimal.Zero
		out.TodayChangePercent = decimal.Zero
		return out
	}

	var prior *model.AggregatePosition
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].CreatedAt.Before(yesterday) {
			prior = &rows[i]
			break
		}
	}
	if prior == nil {
		out.TodayChange = out.TotalChange
		out.TodayChangePercent = out.TotalChangePercent
		return out
	}
	out.TodayChange = latestValue.Sub(prior.Value)
	out.TodayChangePercent = percent(out.TodayChange, prior.Value)
	return out
}

func percent(change, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return change.Div(base).Mul(hundred).Round(4)
}
