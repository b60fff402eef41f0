// Package store persists games, players, positions, orders and the value
// history series.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stockgame/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Store is the read side plus a unit-of-work entry point. WithTx commits
// when fn returns nil and rolls back on error or panic; it never retries.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	CreateGame(ctx context.Context, g *model.Game, admin *model.Player) error
	GetGame(ctx context.Context, id string) (*model.Game, error)
	GetGameByInviteCode(ctx context.Context, code string) (*model.Game, error)
	ListGamesForUser(ctx context.Context, userID string) ([]model.Game, error)
	UpdateGameStatus(ctx context.Context, id string, from, to model.GameStatus) (bool, error)

	AddPlayer(ctx context.Context, p *model.Player) error
	GetPlayer(ctx context.Context, gameID, userID string) (*model.Player, error)
	GetPlayerByID(ctx context.Context, id string) (*model.Player, error)
	ListPlayers(ctx context.Context, gameID string) ([]model.Player, error)
	DeletePlayer(ctx context.Context, id string) error

	UpsertStock(ctx context.Context, s *model.Stock) error
	GetStock(ctx context.Context, id string) (*model.Stock, error)
	GetStockByTicker(ctx context.Context, ticker string) (*model.Stock, error)
	ListStocks(ctx context.Context) ([]model.Stock, error)
	HeldTickers(ctx context.Context) ([]string, error)

	ListPositions(ctx context.Context, playerID string) ([]model.Position, error)
	GetCostBasis(ctx context.Context, kind model.CostBasisKind, playerID, stockID string) (*model.CostBasis, error)
	ListOrders(ctx context.Context, playerID string) ([]model.Order, error)

	// ListHistoricalPositions returns rows ascending by creation time;
	// stockID "" means every stock.
	ListHistoricalPositions(ctx context.Context, playerID, stockID string, since time.Time) ([]model.HistoricalPosition, error)
	// ListAggregatePositions returns rows ascending by creation time.
	ListAggregatePositions(ctx context.Context, res model.Resolution, playerID string, since time.Time) ([]model.AggregatePosition, error)
	LatestAggregatePosition(ctx context.Context, res model.Resolution, playerID string) (*model.AggregatePosition, error)
}

// Tx is the write side of one order. LockPlayer serializes all orders of a
// player for the lifetime of the transaction.
type Tx interface {
	LockPlayer(ctx context.Context, gameID, userID string) (*model.Player, error)
	SetBuyingPower(ctx context.Context, playerID string, bp decimal.Decimal) error

	GetPosition(ctx context.Context, playerID, stockID string) (*model.Position, error)
	SavePosition(ctx context.Context, p *model.Position) error
	DeletePosition(ctx context.Context, playerID, stockID string) error

	GetCostBasis(ctx context.Context, kind model.CostBasisKind, playerID, stockID string) (*model.CostBasis, error)
	SaveCostBasis(ctx context.Context, kind model.CostBasisKind, cb *model.CostBasis) error
	DeleteCostBasis(ctx context.Context, playerID, stockID string) error

	InsertOrder(ctx context.Context, o *model.Order) error

	LatestHistoricalPosition(ctx context.Context, playerID, stockID string) (*model.HistoricalPosition, error)
	InsertHistoricalPosition(ctx context.Context, h *model.HistoricalPosition) error

	LatestAggregatePosition(ctx context.Context, res model.Resolution, playerID string) (*model.AggregatePosition, error)
	HasAggregateBetween(ctx context.Context, res model.Resolution, playerID string, start, end time.Time) (bool, error)
	InsertAggregatePosition(ctx context.Context, res model.Resolution, a *model.AggregatePosition) error
}
