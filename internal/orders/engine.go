// Package orders executes buys and sells against a player's positions.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockgame/internal/game"
	"stockgame/internal/live"
	"stockgame/internal/metrics"
	"stockgame/internal/model"
	"stockgame/internal/prices"
	"stockgame/internal/store"
)

// quantityPlaces bounds the precision of shares derived from a notional.
const quantityPlaces = 8

type Games interface {
	RequirePlayer(ctx context.Context, gameID, userID string) (*model.Player, error)
	RequireActive(ctx context.Context, gameID string) (*model.Game, error)
}

type Pricer interface {
	Price(ctx context.Context, ticker string) (decimal.Decimal, error)
}

type Publisher interface {
	Publish(ev live.Event)
}

type Engine struct {
	store  store.Store
	games  Games
	prices Pricer
	pub    Publisher
	log    *slog.Logger
	now    func() time.Time
}

func NewEngine(st store.Store, games Games, px Pricer, pub Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		games:  games,
		prices: px,
		pub:    pub,
		log:    logger,
		now:    time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// quote is the resolved instrument and its price at order time.
type quote struct {
	stock *model.Stock
	price decimal.Decimal
}

func (e *Engine) Buy(ctx context.Context, gameID, userID string, req OrderRequest) (*Receipt, error) {
	start := time.Now()
	if err := req.validate(); err != nil {
		return nil, e.reject(model.OrderBuy, err)
	}
	q, err := e.prepare(ctx, gameID, userID, req.InstrumentRef)
	if err != nil {
		return nil, e.reject(model.OrderBuy, err)
	}

	qty := buyQuantity(req, q.price)
	if !qty.IsPositive() {
		return nil, e.reject(model.OrderBuy, ErrNonPositiveAmount)
	}
	value := qty.Mul(q.price)
	now := e.now()

	var order *model.Order
	var bp decimal.Decimal
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		player, err := lockPlayer(ctx, tx, gameID, userID)
		if err != nil {
			return err
		}
		if value.GreaterThan(player.BuyingPower) {
			return ErrInsufficientBuyingPower
		}

		pos, err := tx.GetPosition(ctx, player.ID, q.stock.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			pos = &model.Position{PlayerID: player.ID, StockID: q.stock.ID, Quantity: decimal.Zero, CreatedAt: now}
		case err != nil:
			return err
		}
		pos.Quantity = pos.Quantity.Add(qty)
		pos.UpdatedAt = now
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}

		bp = decimal.Max(decimal.Zero, player.BuyingPower.Sub(value))
		if err := tx.SetBuyingPower(ctx, player.ID, bp); err != nil {
			return err
		}

		order = newOrder(gameID, player.ID, q, model.OrderBuy, qty, value, now)
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		prev, err := latestCumulative(ctx, tx, player.ID, q.stock.ID)
		if err != nil {
			return err
		}
		next := prev + model.ToMilli(value)
		if err := appendSeries(ctx, tx, player.ID, q, prev, next, now); err != nil {
			return err
		}
		return updateCostBasis(ctx, tx, player.ID, q.stock.ID, q.price, qty, now)
	})
	if err != nil {
		return nil, e.reject(model.OrderBuy, err)
	}
	return e.complete(order, q, bp, start), nil
}

func (e *Engine) Sell(ctx context.Context, gameID, userID string, req OrderRequest) (*Receipt, error) {
	if err := req.validate(); err != nil {
		return nil, e.reject(model.OrderSell, err)
	}
	return e.sell(ctx, gameID, userID, req)
}

// SellAll liquidates the whole position in one instrument.
func (e *Engine) SellAll(ctx context.Context, gameID, userID string, ref InstrumentRef) (*Receipt, error) {
	if err := ref.validate(); err != nil {
		return nil, e.reject(model.OrderSell, err)
	}
	return e.sell(ctx, gameID, userID, OrderRequest{InstrumentRef: ref})
}

// sell executes a validated sell. A request with neither amount set sells
// the entire position.
func (e *Engine) sell(ctx context.Context, gameID, userID string, req OrderRequest) (*Receipt, error) {
	start := time.Now()
	q, err := e.prepare(ctx, gameID, userID, req.InstrumentRef)
	if err != nil {
		return nil, e.reject(model.OrderSell, err)
	}
	now := e.now()

	var order *model.Order
	var bp decimal.Decimal
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		player, err := lockPlayer(ctx, tx, gameID, userID)
		if err != nil {
			return err
		}
		pos, err := tx.GetPosition(ctx, player.ID, q.stock.ID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrPositionNotFound
		}
		if err != nil {
			return err
		}

		qty, err := sellQuantity(req, pos.Quantity, q.price)
		if err != nil {
			return err
		}
		value := qty.Mul(q.price)
		remaining := pos.Quantity.Sub(qty)
		liquidated := !remaining.IsPositive()
		if liquidated {
			if err := tx.DeletePosition(ctx, player.ID, q.stock.ID); err != nil {
				return err
			}
		} else {
			pos.Quantity = remaining
			pos.UpdatedAt = now
			if err := tx.SavePosition(ctx, pos); err != nil {
				return err
			}
		}

		bp = player.BuyingPower.Add(value)
		if err := tx.SetBuyingPower(ctx, player.ID, bp); err != nil {
			return err
		}

		order = newOrder(gameID, player.ID, q, model.OrderSell, qty, value, now)
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		prev, err := latestCumulative(ctx, tx, player.ID, q.stock.ID)
		if err != nil {
			return err
		}
		next := max(0, prev-model.ToMilli(value))
		if liquidated {
			next = 0
		}
		if err := appendSeries(ctx, tx, player.ID, q, prev, next, now); err != nil {
			return err
		}
		if next == 0 {
			return tx.DeleteCostBasis(ctx, player.ID, q.stock.ID)
		}
		return nil
	})
	if err != nil {
		return nil, e.reject(model.OrderSell, err)
	}
	return e.complete(order, q, bp, start), nil
}

// prepare runs the membership, lifecycle and instrument checks that precede
// the transaction.
func (e *Engine) prepare(ctx context.Context, gameID, userID string, ref InstrumentRef) (quote, error) {
	if _, err := e.games.RequirePlayer(ctx, gameID, userID); err != nil {
		return quote{}, err
	}
	if _, err := e.games.RequireActive(ctx, gameID); err != nil {
		return quote{}, err
	}

	var stock *model.Stock
	var err error
	if id := strings.TrimSpace(ref.StockID); id != "" {
		stock, err = e.store.GetStock(ctx, id)
	} else {
		stock, err = e.store.GetStockByTicker(ctx, strings.ToUpper(strings.TrimSpace(ref.Ticker)))
	}
	if errors.Is(err, store.ErrNotFound) {
		return quote{}, ErrStockNotFound
	}
	if err != nil {
		return quote{}, err
	}

	price, err := e.prices.Price(ctx, stock.Ticker)
	if errors.Is(err, prices.ErrNoPrice) {
		return quote{}, ErrStockNotFound
	}
	if err != nil {
		return quote{}, err
	}
	return quote{stock: stock, price: price}, nil
}

func (e *Engine) reject(orderType model.OrderType, err error) error {
	metrics.OrderRejections.WithLabelValues(rejectionReason(err)).Inc()
	e.log.Debug("order rejected", "type", orderType, "err", err)
	return err
}

func (e *Engine) complete(order *model.Order, q quote, bp decimal.Decimal, start time.Time) *Receipt {
	metrics.OrdersTotal.WithLabelValues(string(order.Type)).Inc()
	metrics.OrderLatency.WithLabelValues(string(order.Type)).Observe(time.Since(start).Seconds())
	e.log.Info("order executed",
		"order_id", order.ID,
		"game_id", order.GameID,
		"player_id", order.PlayerID,
		"ticker", q.stock.Ticker,
		"type", order.Type,
		"quantity", order.Quantity.String(),
		"value", order.Value.String(),
	)

	if e.pub != nil {
		e.pub.Publish(live.Event{
			Type:      "order",
			GameID:    order.GameID,
			PlayerID:  order.PlayerID,
			StockID:   order.StockID,
			Ticker:    q.stock.Ticker,
			OrderType: string(order.Type),
			Quantity:  order.Quantity.String(),
			Price:     order.Price.String(),
			Value:     order.Value.String(),
			CreatedAt: order.CreatedAt,
		})
	}

	return &Receipt{
		ID:                 order.ID,
		CreatedAt:          order.CreatedAt,
		Type:               order.Type,
		Status:             order.Status,
		StockID:            q.stock.ID,
		Name:               q.stock.Name,
		Ticker:             q.stock.Ticker,
		Image:              q.stock.Image,
		Notional:           order.Value,
		Quantity:           order.Quantity,
		BoughtAt:           order.Price,
		CurrentBuyingPower: bp,
	}
}

func lockPlayer(ctx context.Context, tx store.Tx, gameID, userID string) (*model.Player, error) {
	p, err := tx.LockPlayer(ctx, gameID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, game.ErrNotPlayer
	}
	return p, err
}

// buyQuantity truncates notional buys so qty*price never exceeds the amount
// asked for; rounding up would reject a buy of the entire buying power.
func buyQuantity(req OrderRequest, price decimal.Decimal) decimal.Decimal {
	if req.Quantity != nil {
		return *req.Quantity
	}
	q, _ := req.Notional.QuoRem(price, quantityPlaces)
	return q
}

// sellQuantity resolves the shares to sell against the held quantity. A
// notional sell that would leave less than a cent behind becomes a full
// liquidation.
func sellQuantity(req OrderRequest, held, price decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case req.Quantity != nil:
		if req.Quantity.GreaterThan(held) {
			return decimal.Zero, ErrInsufficientStock
		}
		return *req.Quantity, nil
	case req.Notional != nil:
		if req.Notional.GreaterThan(held.Mul(price)) {
			return decimal.Zero, ErrInsufficientStock
		}
		qty := decimal.Min(held, req.Notional.DivRound(price, quantityPlaces))
		if held.Sub(qty).Mul(price).LessThan(dustThreshold) {
			qty = held
		}
		if !qty.IsPositive() {
			return decimal.Zero, ErrNonPositiveAmount
		}
		return qty, nil
	}
	return held, nil
}

func newOrder(gameID, playerID string, q quote, t model.OrderType, qty, value decimal.Decimal, now time.Time) *model.Order {
	return &model.Order{
		ID:        uuid.NewString(),
		GameID:    gameID,
		PlayerID:  playerID,
		StockID:   q.stock.ID,
		Type:      t,
		Status:    model.OrderCompleted,
		Quantity:  qty,
		Price:     q.price,
		Value:     value,
		CreatedAt: now,
	}
}

func latestCumulative(ctx context.Context, tx store.Tx, playerID, stockID string) (int64, error) {
	h, err := tx.LatestHistoricalPosition(ctx, playerID, stockID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return h.ValueMilli, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInstrumentRef), errors.Is(err, ErrNotionalAndQuantity),
		errors.Is(err, ErrAmountRequired), errors.Is(err, ErrNonPositiveAmount):
		return "validation"
	case errors.Is(err, game.ErrNotPlayer), errors.Is(err, game.ErrGameNotActive):
		return "authorization"
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, ErrStockNotFound), errors.Is(err, ErrPositionNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientBuyingPower), errors.Is(err, ErrInsufficientStock):
		return "solvency"
	}
	return "internal"
}
