package orders

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockgame/internal/model"
)

var (
	ErrInstrumentRef           = errors.New("must pass in stockId or ticker")
	ErrNotionalAndQuantity     = errors.New("cannot specify both notional and quantity")
	ErrAmountRequired          = errors.New("must specify notional or quantity")
	ErrNonPositiveAmount       = errors.New("notional/quantity must be positive")
	ErrStockNotFound           = errors.New("stock not found")
	ErrPositionNotFound        = errors.New("position not found")
	ErrInsufficientBuyingPower = errors.New("not enough buying power")
	ErrInsufficientStock       = errors.New("not enough stock")
)

// dustThreshold is the smallest remaining position value a notional sell
// may leave behind.
var dustThreshold = decimal.RequireFromString("0.01")

type InstrumentRef struct {
	StockID string `json:"stockId,omitempty"`
	Ticker  string `json:"ticker,omitempty"`
}

func (r InstrumentRef) validate() error {
	hasID := strings.TrimSpace(r.StockID) != ""
	hasTicker := strings.TrimSpace(r.Ticker) != ""
	if hasID == hasTicker {
		return ErrInstrumentRef
	}
	return nil
}

type OrderRequest struct {
	InstrumentRef
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Notional *decimal.Decimal `json:"notional,omitempty"`
}

func (r OrderRequest) validate() error {
	if err := r.InstrumentRef.validate(); err != nil {
		return err
	}
	switch {
	case r.Quantity != nil && r.Notional != nil:
		return ErrNotionalAndQuantity
	case r.Quantity == nil && r.Notional == nil:
		return ErrAmountRequired
	case r.Quantity != nil && !r.Quantity.IsPositive():
		return ErrNonPositiveAmount
	case r.Notional != nil && !r.Notional.IsPositive():
		return ErrNonPositiveAmount
	}
	return nil
}

type Receipt struct {
	ID                 string            `json:"id"`
	CreatedAt          time.Time         `json:"createdAt"`
	Type               model.OrderType   `json:"type"`
	Status             model.OrderStatus `json:"status"`
	StockID            string            `json:"stockId"`
	Name               string            `json:"name"`
	Ticker             string            `json:"ticker"`
	Image              string            `json:"image"`
	Notional           decimal.Decimal   `json:"notional"`
	Quantity           decimal.Decimal   `json:"quantity"`
	BoughtAt           decimal.Decimal   `json:"boughtAt"`
	CurrentBuyingPower decimal.Decimal   `json:"currentBuyingPower"`
}
