package game

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateGameInput struct {
	UserID             string
	Email              string
	DisplayName        string
	Name               string
	StartAt            time.Time
	EndAt              time.Time
	DefaultBuyingPower decimal.Decimal
}

type JoinGameInput struct {
	UserID      string
	Email       string
	DisplayName string
	InviteCode  string
}

type Standing struct {
	Rank        int             `json:"rank"`
	PlayerID    string          `json:"playerId"`
	DisplayName string          `json:"displayName"`
	BuyingPower decimal.Decimal `json:"buyingPower"`
	Invested    decimal.Decimal `json:"invested"`
	Total       decimal.Decimal `json:"total"`
}
