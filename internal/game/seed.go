package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockgame/internal/model"
)

type SeedStock struct {
	Ticker string
	Name   string
	Price  decimal.Decimal
}

// DefaultStocks is the starter catalog. Prices are only used by the offline
// static feed.
var DefaultStocks = []SeedStock{
	{"AAPL", "Apple Inc.", decimal.NewFromInt(228)},
	{"MSFT", "Microsoft Corporation", decimal.NewFromInt(415)},
	{"NVDA", "NVIDIA Corporation", decimal.NewFromInt(118)},
	{"AMZN", "Amazon.com, Inc.", decimal.NewFromInt(186)},
	{"GOOGL", "Alphabet Inc.", decimal.NewFromInt(165)},
	{"META", "Meta Platforms, Inc.", decimal.NewFromInt(560)},
	{"TSLA", "Tesla, Inc.", decimal.NewFromInt(250)},
	{"BRK.B", "Berkshire Hathaway Inc.", decimal.NewFromInt(460)},
	{"JPM", "JPMorgan Chase & Co.", decimal.NewFromInt(210)},
	{"V", "Visa Inc.", decimal.NewFromInt(280)},
	{"JNJ", "Johnson & Johnson", decimal.NewFromInt(160)},
	{"WMT", "Walmart Inc.", decimal.NewFromInt(80)},
	{"XOM", "Exxon Mobil Corporation", decimal.NewFromInt(117)},
	{"KO", "The Coca-Cola Company", decimal.NewFromInt(70)},
	{"DIS", "The Walt Disney Company", decimal.NewFromInt(95)},
	{"NFLX", "Netflix, Inc.", decimal.NewFromInt(700)},
	{"AMD", "Advanced Micro Devices, Inc.", decimal.NewFromInt(155)},
	{"INTC", "Intel Corporation", decimal.NewFromInt(22)},
	{"SPY", "SPDR S&P 500 ETF Trust", decimal.NewFromInt(570)},
	{"QQQ", "Invesco QQQ Trust", decimal.NewFromInt(490)},
}

// SeedStocks inserts the default catalog when the stock table is empty.
func (s *Service) SeedStocks(ctx context.Context) error {
	existing, err := s.store.ListStocks(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, row := range DefaultStocks {
		if err := ValidateTicker(row.Ticker); err != nil {
			return err
		}
		stock := &model.Stock{ID: uuid.NewString(), Ticker: row.Ticker, Name: row.Name}
		if err := s.store.UpsertStock(ctx, stock); err != nil {
			return err
		}
	}
	s.log.Info("seeded stock catalog", "count", len(DefaultStocks))
	return nil
}

// SeedPrices maps the default catalog to its offline prices.
func SeedPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(DefaultStocks))
	for _, row := range DefaultStocks {
		out[row.Ticker] = row.Price
	}
	return out
}
