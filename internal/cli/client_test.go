package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgame/internal/model"
	"stockgame/internal/orders"
)

func TestBuySendsBearerAndDecodesReceipt(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/games/g1/orders/buy", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"o1","type":"BUY","ticker":"AAPL","quantity":"2","boughtAt":"80","notional":"160","currentBuyingPower":"99840"}`))
	}))
	defer srv.Close()

	q := decimal.NewFromInt(2)
	receipt, err := NewClient(srv.URL+"/").Buy(context.Background(), "tok", "g1", orders.OrderRequest{
		InstrumentRef: orders.InstrumentRef{Ticker: "AAPL"},
		Quantity:      &q,
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", receipt.ID)
	assert.Equal(t, model.OrderBuy, receipt.Type)
	assert.True(t, receipt.CurrentBuyingPower.Equal(decimal.NewFromInt(99840)))

	assert.Equal(t, "AAPL", got["ticker"])
	assert.Equal(t, "2", got["quantity"])
	assert.NotContains(t, got, "stockId")
	assert.NotContains(t, got, "notional")
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListGames(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.EqualError(t, err, "api status 401: invalid token")
}

func TestAggregateSeriesPassesWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1W", r.URL.Query().Get("latest"))
		_, _ = w.Write([]byte(`[{"value":"100000","createdAt":"2026-03-02T15:00:00Z","playerId":"p1"}]`))
	}))
	defer srv.Close()

	points, err := NewClient(srv.URL).AggregateSeries(context.Background(), "tok", "g1", "1W")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "p1", points[0].PlayerID)
}
