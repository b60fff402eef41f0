package prices

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

type tradeClient interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
}

// AlpacaFeed quotes the last trade price from the market data API.
type AlpacaFeed struct {
	client tradeClient
}

func NewAlpacaFeed(apiKey, apiSecret, dataURL string) *AlpacaFeed {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaFeed{client: marketdata.NewClient(opts)}
}

func (f *AlpacaFeed) LatestPrice(_ context.Context, ticker string) (decimal.Decimal, error) {
	trade, err := f.client.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest trade %s: %w", ticker, err)
	}
	if trade == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromFloat(trade.Price), nil
}

func (f *AlpacaFeed) LatestPrices(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	trades, err := f.client.GetLatestTrades(tickers, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, fmt.Errorf("latest trades: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(trades))
	for ticker, trade := range trades {
		out[ticker] = decimal.NewFromFloat(trade.Price)
	}
	return out, nil
}
