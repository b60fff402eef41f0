package api

import (
	"net/http"
	"slices"
	"strings"

	"stockgame/internal/series"
)

func (s *Server) handleAggregateSeries(w http.ResponseWriter, r *http.Request) {
	g, p, ok := s.membership(w, r)
	if !ok {
		return
	}
	window, err := series.ParseWindow(r.URL.Query().Get("latest"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	points, err := s.svc.Series.AggregatePositions(r.Context(), g.StartAt, p.ID, window, g.DefaultBuyingPower)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := slices.Collect(points)
	if out == nil {
		out = []series.Point{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStockSeries(w http.ResponseWriter, r *http.Request) {
	g, p, ok := s.membership(w, r)
	if !ok {
		return
	}
	window, err := series.ParseWindow(r.URL.Query().Get("latest"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	stockID := strings.TrimSpace(r.URL.Query().Get("stockId"))
	out, err := s.svc.Series.StockPositions(r.Context(), g.StartAt, p.ID, stockID, window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHoldingsValue(w http.ResponseWriter, r *http.Request) {
	_, p, ok := s.membership(w, r)
	if !ok {
		return
	}
	out, err := s.svc.Valuation.HoldingsValue(r.Context(), p.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHoldingsChange(w http.ResponseWriter, r *http.Request) {
	g, p, ok := s.membership(w, r)
	if !ok {
		return
	}
	out, err := s.svc.Valuation.HoldingsChange(r.Context(), p.ID, g.DefaultBuyingPower)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	g, _, ok := s.membership(w, r)
	if !ok {
		return
	}
	s.svc.Hub.Serve(w, r, g.ID)
}
