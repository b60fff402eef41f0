package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgame/internal/model"
	"stockgame/internal/notify"
	"stockgame/internal/store"
)

type recordingNotifier struct {
	got chan notify.GameSummary
	err error
}

func (r *recordingNotifier) GameFinished(_ context.Context, s notify.GameSummary) error {
	r.got <- s
	return r.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*Service, *store.MemoryStore, *clock, *recordingNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	clk := &clock{t: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	n := &recordingNotifier{got: make(chan notify.GameSummary, 4)}
	svc := NewService(st, n, nil).WithClock(clk.now)
	return svc, st, clk, n
}

func createGame(t *testing.T, svc *Service, clk *clock) (*model.Game, *model.Player) {
	t.Helper()
	g, admin, err := svc.CreateGame(context.Background(), CreateGameInput{
		UserID:      "admin-user",
		DisplayName: "Admin Person",
		Name:        "Spring League",
		StartAt:     clk.t.Add(-time.Hour),
		EndAt:       clk.t.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return g, admin
}

func TestCreateGameMakesAdminPlayer(t *testing.T) {
	svc, st, clk, _ := newService(t)
	g, admin := createGame(t, svc, clk)

	assert.Equal(t, model.GameActive, g.Status)
	assert.Len(t, g.InviteCode, inviteCodeLen)
	assert.True(t, g.DefaultBuyingPower.Equal(DefaultBuyingPower))
	assert.True(t, admin.IsGameAdmin)
	assert.True(t, admin.BuyingPower.Equal(DefaultBuyingPower))

	p, err := st.GetPlayer(context.Background(), g.ID, "admin-user")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, p.ID)
}

func TestCreateGameRejectsBadInput(t *testing.T) {
	svc, _, clk, _ := newService(t)
	_, _, err := svc.CreateGame(context.Background(), CreateGameInput{
		UserID: "u", Name: "ok", StartAt: clk.t, EndAt: clk.t.Add(time.Hour),
		DefaultBuyingPower: decimal.NewFromInt(-5),
	})
	require.ErrorIs(t, err, ErrInvalidGame)

	_, _, err = svc.CreateGame(context.Background(), CreateGameInput{
		UserID: "u", Name: "ok", StartAt: clk.t, EndAt: clk.t.Add(-time.Hour),
	})
	require.ErrorIs(t, err, ErrInvalidGame)
}

func TestJoinGame(t *testing.T) {
	svc, _, clk, _ := newService(t)
	g, _ := createGame(t, svc, clk)
	ctx := context.Background()

	joined, p, err := svc.JoinGame(ctx, JoinGameInput{UserID: "u2", Email: "bo@example.com", InviteCode: g.InviteCode})
	require.NoError(t, err)
	assert.Equal(t, g.ID, joined.ID)
	assert.Equal(t, "player_bo", p.DisplayName)
	assert.False(t, p.IsGameAdmin)

	_, _, err = svc.JoinGame(ctx, JoinGameInput{UserID: "u2", InviteCode: g.InviteCode})
	require.ErrorIs(t, err, ErrAlreadyJoined)

	_, _, err = svc.JoinGame(ctx, JoinGameInput{UserID: "u3", InviteCode: "NOPE"})
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestRequireActiveAndRequirePlayer(t *testing.T) {
	svc, _, clk, _ := newService(t)
	g, _ := createGame(t, svc, clk)
	ctx := context.Background()

	_, err := svc.RequireActive(ctx, g.ID)
	require.NoError(t, err)

	_, err = svc.RequirePlayer(ctx, g.ID, "stranger")
	require.ErrorIs(t, err, ErrNotPlayer)

	clk.t = clk.t.Add(-2 * time.Hour)
	_, err = svc.RequireActive(ctx, g.ID)
	require.ErrorIs(t, err, ErrGameNotActive)
}

func TestRefreshFinishesGameAndNotifiesOnce(t *testing.T) {
	svc, st, clk, n := newService(t)
	g, _ := createGame(t, svc, clk)
	ctx := context.Background()

	clk.t = clk.t.Add(25 * time.Hour)
	got, err := svc.Refresh(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GameFinished, got.Status)

	stored, err := st.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GameFinished, stored.Status)

	select {
	case s := <-n.got:
		assert.Equal(t, "Spring League", s.Name)
		require.Len(t, s.Leaders, 1)
		assert.True(t, s.Leaders[0].Value.Equal(DefaultBuyingPower))
	case <-time.After(2 * time.Second):
		t.Fatal("expected game-end notification")
	}

	_, err = svc.Refresh(ctx, g.ID)
	require.NoError(t, err)
	svc.Wait()
	assert.Empty(t, n.got, "transition is announced once")
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	svc, _, clk, n := newService(t)
	n.err = errors.New("telegram down")
	g, _ := createGame(t, svc, clk)

	clk.t = clk.t.Add(25 * time.Hour)
	got, err := svc.Refresh(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GameFinished, got.Status)
	svc.Wait()
}

func TestKickPlayer(t *testing.T) {
	svc, _, clk, _ := newService(t)
	g, admin := createGame(t, svc, clk)
	ctx := context.Background()
	_, p, err := svc.JoinGame(ctx, JoinGameInput{UserID: "u2", InviteCode: g.InviteCode})
	require.NoError(t, err)

	require.ErrorIs(t, svc.KickPlayer(ctx, g.ID, "u2", admin.ID), ErrNotAdmin)
	require.ErrorIs(t, svc.KickPlayer(ctx, g.ID, "admin-user", admin.ID), ErrCannotKickSelf)
	require.ErrorIs(t, svc.KickPlayer(ctx, g.ID, "admin-user", "missing"), ErrPlayerNotFound)

	require.NoError(t, svc.KickPlayer(ctx, g.ID, "admin-user", p.ID))
	_, err = svc.RequirePlayer(ctx, g.ID, "u2")
	require.ErrorIs(t, err, ErrNotPlayer)
}

func TestStandingsRankByTotal(t *testing.T) {
	svc, st, clk, _ := newService(t)
	g, admin := createGame(t, svc, clk)
	ctx := context.Background()
	_, p, err := svc.JoinGame(ctx, JoinGameInput{UserID: "u2", DisplayName: "second", InviteCode: g.InviteCode})
	require.NoError(t, err)

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertAggregatePosition(ctx, model.ResolutionRaw, &model.AggregatePosition{
			ID: "a1", PlayerID: p.ID, Value: decimal.NewFromInt(500), CreatedAt: clk.t,
		})
	}))

	standings, err := svc.Standings(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, p.ID, standings[0].PlayerID)
	assert.Equal(t, 1, standings[0].Rank)
	assert.True(t, standings[0].Total.Equal(decimal.NewFromInt(100_500)))
	assert.Equal(t, admin.ID, standings[1].PlayerID)
}

func TestSeedStocksIsIdempotent(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedStocks(ctx))
	require.NoError(t, svc.SeedStocks(ctx))

	stocks, err := st.ListStocks(ctx)
	require.NoError(t, err)
	assert.Len(t, stocks, len(DefaultStocks))
	assert.Len(t, SeedPrices(), len(DefaultStocks))
}
