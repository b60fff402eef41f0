package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockgame/internal/model"
	"stockgame/internal/notify"
	"stockgame/internal/store"
)

const (
	inviteCodeAttempts = 5
	notifyTimeout      = 30 * time.Second
)

// Service owns game membership and the lazily evaluated game status.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewService(st store.Store, notifier notify.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    st,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Wait blocks until in-flight game-end notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) CreateGame(ctx context.Context, in CreateGameInput) (*model.Game, *model.Player, error) {
	if err := validateGameName(in.Name); err != nil {
		return nil, nil, err
	}
	if err := validateSchedule(in.StartAt, in.EndAt); err != nil {
		return nil, nil, err
	}
	bp := in.DefaultBuyingPower
	if bp.IsZero() {
		bp = DefaultBuyingPower
	}
	if !bp.IsPositive() {
		return nil, nil, fmt.Errorf("%w: default buying power must be positive", ErrInvalidGame)
	}

	now := s.now()
	g := &model.Game{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(in.Name),
		DefaultBuyingPower: bp,
		StartAt:            in.StartAt,
		EndAt:              in.EndAt,
		CreatedBy:          in.UserID,
		CreatedAt:          now,
	}
	g.Status = StatusAt(*g, now)
	admin := &model.Player{
		ID:          uuid.NewString(),
		GameID:      g.ID,
		UserID:      in.UserID,
		DisplayName: pickDisplayName(in.DisplayName, in.Email),
		BuyingPower: bp,
		IsGameAdmin: true,
		CreatedAt:   now,
	}

	var err error
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		g.InviteCode, err = generateInviteCode()
		if err != nil {
			return nil, nil, err
		}
		err = s.store.CreateGame(ctx, g, admin)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("game created", "game_id", g.ID, "user_id", in.UserID, "start_at", g.StartAt, "end_at", g.EndAt)
	return g, admin, nil
}

func (s *Service) JoinGame(ctx context.Context, in JoinGameInput) (*model.Game, *model.Player, error) {
	g, err := s.store.GetGameByInviteCode(ctx, strings.TrimSpace(in.InviteCode))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrGameNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	g, err = s.refresh(ctx, g)
	if err != nil {
		return nil, nil, err
	}
	if g.Status == model.GameFinished {
		return nil, nil, ErrGameFinished
	}

	p := &model.Player{
		ID:          uuid.NewString(),
		GameID:      g.ID,
		UserID:      in.UserID,
		DisplayName: pickDisplayName(in.DisplayName, in.Email),
		BuyingPower: g.DefaultBuyingPower,
		CreatedAt:   s.now(),
	}
	if err := s.store.AddPlayer(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, ErrAlreadyJoined
		}
		return nil, nil, err
	}
	s.log.Info("player joined", "game_id", g.ID, "player_id", p.ID, "user_id", in.UserID)
	return g, p, nil
}

func (s *Service) ListGames(ctx context.Context, userID string) ([]model.Game, error) {
	games, err := s.store.ListGamesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range games {
		g, err := s.refresh(ctx, &games[i])
		if err != nil {
			return nil, err
		}
		games[i] = *g
	}
	return games, nil
}

// Refresh loads a game and brings its stored status up to date.
func (s *Service) Refresh(ctx context.Context, gameID string) (*model.Game, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, g)
}

func (s *Service) refresh(ctx context.Context, g *model.Game) (*model.Game, error) {
	want := StatusAt(*g, s.now())
	if want == g.Status {
		return g, nil
	}
	changed, err := s.store.UpdateGameStatus(ctx, g.ID, g.Status, want)
	if err != nil {
		return nil, err
	}
	from := g.Status
	g.Status = want
	if changed {
		s.log.Info("game status changed", "game_id", g.ID, "from", from, "to", want)
		if want == model.GameFinished {
			s.announce(*g)
		}
	}
	return g, nil
}

// announce sends the game-end summary in the background. Failures are
// logged only.
func (s *Service) announce(g model.Game) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		standings, err := s.Standings(ctx, g.ID)
		if err != nil {
			s.log.Error("game-end standings failed", "game_id", g.ID, "err", err)
			return
		}
		summary := notify.GameSummary{GameID: g.ID, Name: g.Name}
		for _, st := range standings {
			summary.Leaders = append(summary.Leaders, notify.Leader{DisplayName: st.DisplayName, Value: st.Total})
		}
		if err := s.notifier.GameFinished(ctx, summary); err != nil {
			s.log.Error("game-end notification failed", "game_id", g.ID, "err", err)
		}
	}()
}

// RequireActive returns the game if it is currently accepting orders.
func (s *Service) RequireActive(ctx context.Context, gameID string) (*model.Game, error) {
	g, err := s.Refresh(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != model.GameActive {
		return nil, ErrGameNotActive
	}
	return g, nil
}

func (s *Service) RequirePlayer(ctx context.Context, gameID, userID string) (*model.Player, error) {
	p, err := s.store.GetPlayer(ctx, gameID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotPlayer
	}
	return p, err
}

func (s *Service) KickPlayer(ctx context.Context, gameID, adminUserID, playerID string) error {
	admin, err := s.RequirePlayer(ctx, gameID, adminUserID)
	if err != nil {
		return err
	}
	if !admin.IsGameAdmin {
		return ErrNotAdmin
	}
	if admin.ID == playerID {
		return ErrCannotKickSelf
	}
	target, err := s.store.GetPlayerByID(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && target.GameID != gameID) {
		return ErrPlayerNotFound
	}
	if err != nil {
		return err
	}
	if err := s.store.DeletePlayer(ctx, target.ID); err != nil {
		return err
	}
	s.log.Info("player removed", "game_id", gameID, "player_id", target.ID, "by", admin.ID)
	return nil
}

// Standings ranks players by buying power plus invested capital.
func (s *Service) Standings(ctx context.Context, gameID string) ([]Standing, error) {
	players, err := s.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	out := make([]Standing, 0, len(players))
	for _, p := range players {
		invested := decimal.Zero
		latest, err := s.store.LatestAggregatePosition(ctx, model.ResolutionRaw, p.ID)
		switch {
		case err == nil:
			invested = latest.Value
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		out = append(out, Standing{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			BuyingPower: p.BuyingPower,
			Invested:    invested,
			Total:       p.BuyingPower.Add(invested),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func pickDisplayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return sanitizeDisplayName(name)
	}
	if email != "" {
		return displayNameFromEmail(email)
	}
	return "player"
}
