package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"stockgame/internal/model"
)

// Buying power and quantity follow the signed sum of accepted trades, never
// go negative, and rejected trades leave no rows behind.
func TestPropertyConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		price := rapid.Int64Range(1, 500).Draw(t, "price")
		f.feed.Set("AAPL", decimal.NewFromInt(price))

		var held int64
		bp := decimal.NewFromInt(100_000)
		accepted := 0

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			n := rapid.Int64Range(1, 400).Draw(t, "quantity")
			if rapid.Bool().Draw(t, "buy") {
				_, err := f.engine.Buy(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(n)})
				cost := decimal.NewFromInt(n * price)
				if cost.GreaterThan(bp) {
					if err != ErrInsufficientBuyingPower {
						t.Fatalf("buy %d @ %d with bp %s: got %v", n, price, bp, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("buy %d @ %d: %v", n, price, err)
				}
				held += n
				bp = bp.Sub(cost)
			} else {
				_, err := f.engine.Sell(ctx, f.game.ID, "user-1", OrderRequest{InstrumentRef: aapl(), Quantity: qty(n)})
				switch {
				case held == 0:
					if err != ErrPositionNotFound {
						t.Fatalf("sell with no position: got %v", err)
					}
					continue
				case n > held:
					if err != ErrInsufficientStock {
						t.Fatalf("sell %d of %d: got %v", n, held, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("sell %d of %d: %v", n, held, err)
				}
				held -= n
				bp = bp.Add(decimal.NewFromInt(n * price))
			}
			accepted++

			gotBP := f.buyingPower(t)
			if gotBP.IsNegative() || !gotBP.Equal(bp) {
				t.Fatalf("buying power %s, want %s", gotBP, bp)
			}
			gotQty, ok := f.position(t)
			if held == 0 && ok {
				t.Fatalf("position row left with quantity %s", gotQty)
			}
			if held > 0 && !gotQty.Equal(decimal.NewFromInt(held)) {
				t.Fatalf("quantity %s, want %d", gotQty, held)
			}
		}

		if got := len(f.orders(t)); got != accepted {
			t.Fatalf("orders %d, want %d", got, accepted)
		}
		if got := len(f.history(t)); got != accepted {
			t.Fatalf("history rows %d, want %d", got, accepted)
		}
		if got := len(f.aggregates(t, model.ResolutionRaw)); got != accepted {
			t.Fatalf("raw aggregate rows %d, want %d", got, accepted)
		}
		if accepted > 0 && len(f.aggregates(t, model.ResolutionMinute)) != 1 {
			t.Fatalf("expected one minute bucket row for trades at a fixed instant")
		}
	})
}
