package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"stockgame/internal/model"
	"stockgame/internal/orders"
	"stockgame/internal/store"
)

type positionView struct {
	StockID       string           `json:"stockId"`
	Ticker        string           `json:"ticker"`
	Name          string           `json:"name"`
	Image         string           `json:"image"`
	Quantity      decimal.Decimal  `json:"quantity"`
	AvgPrice      *decimal.Decimal `json:"avgPrice"`
	TodayAvgPrice *decimal.Decimal `json:"todayAvgPrice"`
	CurrentPrice  *decimal.Decimal `json:"currentPrice"`
	MarketValue   *decimal.Decimal `json:"marketValue"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, s.svc.Orders.Buy)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, s.svc.Orders.Sell)
}

type orderFunc func(ctx context.Context, gameID, userID string, req orders.OrderRequest) (*orders.Receipt, error)

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, place orderFunc) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in orders.OrderRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := place(r.Context(), chi.URLParam(r, "gameID"), user.UserID, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleSellAll(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in orders.InstrumentRef
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := s.svc.Orders.SellAll(r.Context(), chi.URLParam(r, "gameID"), user.UserID, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleOrdersList(w http.ResponseWriter, r *http.Request) {
	_, p, ok := s.membership(w, r)
	if !ok {
		return
	}
	out, err := s.svc.Store.ListOrders(r.Context(), p.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if out == nil {
		out = []model.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	_, p, ok := s.membership(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	positions, err := s.svc.Store.ListPositions(ctx, p.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		stock, err := s.svc.Store.GetStock(ctx, pos.StockID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		v := positionView{
			StockID:  stock.ID,
			Ticker:   stock.Ticker,
			Name:     stock.Name,
			Image:    stock.Image,
			Quantity: pos.Quantity,
		}
		if v.AvgPrice, err = s.avgPrice(r, model.CostBasisTotal, p.ID, stock.ID); err != nil {
			writeDomainError(w, err)
			return
		}
		if v.TodayAvgPrice, err = s.avgPrice(r, model.CostBasisToday, p.ID, stock.ID); err != nil {
			writeDomainError(w, err)
			return
		}
		if price, err := s.svc.Prices.Price(ctx, stock.Ticker); err != nil {
			s.log.Warn("position price unavailable", "ticker", stock.Ticker, "err", err)
		} else {
			value := price.Mul(pos.Quantity)
			v.CurrentPrice = &price
			v.MarketValue = &value
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func (s *Server) avgPrice(r *http.Request, kind model.CostBasisKind, playerID, stockID string) (*decimal.Decimal, error) {
	cb, err := s.svc.Store.GetCostBasis(r.Context(), kind, playerID, stockID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cb.AvgPrice, nil
}
