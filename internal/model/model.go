package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type GameStatus string

const (
	GameNotStarted GameStatus = "NOT_STARTED"
	GameActive     GameStatus = "ACTIVE"
	GameFinished   GameStatus = "FINISHED"
)

type Game struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	InviteCode         string          `json:"inviteCode"`
	DefaultBuyingPower decimal.Decimal `json:"defaultBuyingPower"`
	StartAt            time.Time       `json:"startAt"`
	EndAt              time.Time       `json:"endAt"`
	Status             GameStatus      `json:"status"`
	CreatedBy          string          `json:"createdBy"`
	CreatedAt          time.Time       `json:"createdAt"`
}

type Player struct {
	ID          string          `json:"id"`
	GameID      string          `json:"gameId"`
	UserID      string          `json:"userId"`
	DisplayName string          `json:"displayName"`
	BuyingPower decimal.Decimal `json:"buyingPower"`
	IsGameAdmin bool            `json:"isGameAdmin"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type Stock struct {
	ID     string `json:"id"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Image  string `json:"image"`
}

type Position struct {
	PlayerID  string          `json:"playerId"`
	StockID   string          `json:"stockId"`
	Quantity  decimal.Decimal `json:"quantity"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CostBasisKind selects the lifetime or same-trading-day average.
type CostBasisKind string

const (
	CostBasisTotal CostBasisKind = "total"
	CostBasisToday CostBasisKind = "today"
)

type CostBasis struct {
	PlayerID  string          `json:"playerId"`
	StockID   string          `json:"stockId"`
	AvgPrice  decimal.Decimal `json:"avgPrice"`
	NumBuys   decimal.Decimal `json:"numBuys"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type OrderType string

const (
	OrderBuy  OrderType = "BUY"
	OrderSell OrderType = "SELL"
)

type OrderStatus string

const OrderCompleted OrderStatus = "COMPLETED"

type Order struct {
	ID        string          `json:"id"`
	GameID    string          `json:"gameId"`
	PlayerID  string          `json:"playerId"`
	StockID   string          `json:"stockId"`
	Type      OrderType       `json:"type"`
	Status    OrderStatus     `json:"status"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`
}

// HistoricalPosition is one per-stock cumulative invested-value sample.
// Amounts are stored in thousandths of a dollar.
type HistoricalPosition struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	StockID    string    `json:"stockId"`
	ValueMilli int64     `json:"valueMilli"`
	PriceMilli int64     `json:"priceMilli"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Resolution names one of the aggregate series tables.
type Resolution string

const (
	ResolutionRaw    Resolution = "raw"
	ResolutionMinute Resolution = "minute"
	ResolutionHour   Resolution = "hour"
	ResolutionDay    Resolution = "day"
)

var BucketedResolutions = []Resolution{ResolutionMinute, ResolutionHour, ResolutionDay}

type AggregatePosition struct {
	ID        string          `json:"id"`
	PlayerID  string          `json:"playerId"`
	Value     decimal.Decimal `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`
}
