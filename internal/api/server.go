package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"stockgame/internal/auth"
	"stockgame/internal/config"
	"stockgame/internal/game"
	"stockgame/internal/live"
	"stockgame/internal/metrics"
	"stockgame/internal/orders"
	"stockgame/internal/series"
	"stockgame/internal/store"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID      string
	Email       string
	DisplayName string
	Token       string
}

type Authenticator interface {
	SignUp(ctx context.Context, email, password, displayName string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Session, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (auth.SupabaseUser, error)
}

// Services are the domain components the handlers call into.
type Services struct {
	Games     *game.Service
	Orders    *orders.Engine
	Store     store.Store
	Prices    orders.Pricer
	Series    *series.Reader
	Valuation *series.Valuation
	Hub       *live.Hub
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	auth     Authenticator
	svc      Services
	validate *validator.Validate
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, authClient Authenticator, svc Services) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		auth:     authClient,
		svc:      svc,
		validate: validator.New(),
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Post("/auth/signup", s.handleSignup)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Long-lived; kept outside the request timeout.
			r.Get("/games/{gameID}/live", s.handleLive)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				r.Get("/stocks", s.handleStocksList)

				r.Get("/games", s.handleGamesList)
				r.Post("/games", s.handleCreateGame)
				r.Post("/games/join", s.handleJoinGame)
				r.Get("/games/{gameID}", s.handleGameDetail)
				r.Get("/games/{gameID}/standings", s.handleStandings)
				r.Delete("/games/{gameID}/players/{playerID}", s.handleKickPlayer)

				r.Post("/games/{gameID}/orders/buy", s.handleBuy)
				r.Post("/games/{gameID}/orders/sell", s.handleSell)
				r.Post("/games/{gameID}/orders/sell-all", s.handleSellAll)
				r.Get("/games/{gameID}/orders", s.handleOrdersList)
				r.Get("/games/{gameID}/positions", s.handlePositions)

				r.Get("/games/{gameID}/historical-aggregate-positions", s.handleAggregateSeries)
				r.Get("/games/{gameID}/historical-positions", s.handleStockSeries)
				r.Get("/games/{gameID}/holdings-value", s.handleHoldingsValue)
				r.Get("/games/{gameID}/holdings-change", s.handleHoldingsChange)
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" && websocket.IsWebSocketUpgrade(r) {
			// Browsers cannot set headers on WebSocket handshakes.
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID:      user.ID,
			Email:       user.Email,
			DisplayName: user.Metadata.DisplayName,
			Token:       token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email       string `json:"email" validate:"required,email"`
		Password    string `json:"password" validate:"required,min=6"`
		DisplayName string `json:"displayName" validate:"omitempty,max=32"`
	}
	if err := s.decodeValid(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.SignUp(r.Context(), strings.TrimSpace(in.Email), in.Password, strings.TrimSpace(in.DisplayName))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := s.decodeValid(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	if err := s.decodeValid(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrInstrumentRef), errors.Is(err, orders.ErrNotionalAndQuantity),
		errors.Is(err, orders.ErrAmountRequired), errors.Is(err, orders.ErrNonPositiveAmount),
		errors.Is(err, game.ErrInvalidGame), errors.Is(err, game.ErrInvalidTicker),
		errors.Is(err, game.ErrCannotKickSelf), errors.Is(err, game.ErrGameFinished),
		errors.Is(err, series.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrInsufficientBuyingPower), errors.Is(err, orders.ErrInsufficientStock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrNotPlayer), errors.Is(err, game.ErrGameNotActive), errors.Is(err, game.ErrNotAdmin):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, game.ErrPlayerNotFound),
		errors.Is(err, orders.ErrStockNotFound), errors.Is(err, orders.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrAlreadyJoined):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeValid decodes a JSON body and runs its struct-tag validation.
func (s *Server) decodeValid(r *http.Request, out any) error {
	if err := decodeJSON(r, out); err != nil {
		return err
	}
	return s.validate.Struct(out)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
