package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"stockgame/internal/game"
	"stockgame/internal/model"
)

type createGameRequest struct {
	Name               string           `json:"name" validate:"required,max=64"`
	StartAt            time.Time        `json:"startAt"`
	EndAt              time.Time        `json:"endAt" validate:"gtfield=StartAt"`
	DefaultBuyingPower *decimal.Decimal `json:"defaultBuyingPower,omitempty"`
	DisplayName        string           `json:"displayName" validate:"omitempty,max=32"`
}

type joinGameRequest struct {
	InviteCode  string `json:"inviteCode" validate:"required,alphanum,max=16"`
	DisplayName string `json:"displayName" validate:"omitempty,max=32"`
}

type gameView struct {
	Game   *model.Game   `json:"game"`
	Player *model.Player `json:"player"`
}

func (s *Server) handleStocksList(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.svc.Store.ListStocks(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stocks": stocks})
}

func (s *Server) handleGamesList(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	games, err := s.svc.Games.ListGames(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in createGameRequest
	if err := s.decodeValid(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bp := decimal.NewFromFloat(s.cfg.DefaultBuyingPower)
	if in.DefaultBuyingPower != nil {
		bp = *in.DefaultBuyingPower
		if !bp.IsPositive() {
			writeError(w, http.StatusBadRequest, "defaultBuyingPower must be positive")
			return
		}
	}
	g, p, err := s.svc.Games.CreateGame(r.Context(), game.CreateGameInput{
		UserID:             user.UserID,
		Email:              user.Email,
		DisplayName:        firstNonEmpty(in.DisplayName, user.DisplayName),
		Name:               in.Name,
		StartAt:            in.StartAt,
		EndAt:              in.EndAt,
		DefaultBuyingPower: bp,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameView{Game: g, Player: p})
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in joinGameRequest
	if err := s.decodeValid(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, p, err := s.svc.Games.JoinGame(r.Context(), game.JoinGameInput{
		UserID:      user.UserID,
		Email:       user.Email,
		DisplayName: firstNonEmpty(in.DisplayName, user.DisplayName),
		InviteCode:  strings.ToUpper(in.InviteCode),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameView{Game: g, Player: p})
}

func (s *Server) handleGameDetail(w http.ResponseWriter, r *http.Request) {
	g, p, ok := s.membership(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, gameView{Game: g, Player: p})
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	g, _, ok := s.membership(w, r)
	if !ok {
		return
	}
	standings, err := s.svc.Games.Standings(r.Context(), g.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"standings": standings})
}

func (s *Server) handleKickPlayer(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	gameID := chi.URLParam(r, "gameID")
	if err := s.svc.Games.KickPlayer(r.Context(), gameID, user.UserID, chi.URLParam(r, "playerID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// membership resolves the game in the URL and the caller's player in it,
// writing the error response itself when either is missing.
func (s *Server) membership(w http.ResponseWriter, r *http.Request) (*model.Game, *model.Player, bool) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, nil, false
	}
	g, err := s.svc.Games.Refresh(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeDomainError(w, err)
		return nil, nil, false
	}
	p, err := s.svc.Games.RequirePlayer(r.Context(), g.ID, user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return nil, nil, false
	}
	return g, p, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
