package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	return NewSessionStore(filepath.Join(t.TempDir(), "stk", "session.json"))
}

func TestSessionRoundTripAndActiveGame(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Load()
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, st.Save(Session{AccessToken: "tok", UserID: "u1", GameID: "g1"}))
	s, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)

	id, err := s.ActiveGame("")
	require.NoError(t, err)
	assert.Equal(t, "g1", id)
	id, err = s.ActiveGame(" g2 ")
	require.NoError(t, err)
	assert.Equal(t, "g2", id)

	_, err = Session{AccessToken: "tok"}.ActiveGame("")
	assert.ErrorIs(t, err, ErrNoGameSelected)

	require.NoError(t, st.Clear())
	require.NoError(t, st.Clear())
	_, err = st.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSelectGameKeepsRecentList(t *testing.T) {
	st := newTestStore(t)
	s := Session{AccessToken: "tok", UserID: "u1"}

	for _, id := range []string{"g1", "g2", "g3", "g4", "g5", "g6", "g2"} {
		require.NoError(t, st.SelectGame(&s, id))
	}
	assert.Equal(t, "g2", s.GameID)
	assert.Equal(t, []string{"g2", "g6", "g5", "g4", "g3"}, s.RecentGames)

	saved, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, s, saved)

	assert.ErrorIs(t, st.SelectGame(&s, "  "), ErrNoGameSelected)
	assert.Equal(t, "g2", s.GameID)
}

func TestSignInKeepsSelectionForSameUser(t *testing.T) {
	st := newTestStore(t)
	s := Session{AccessToken: "old", RefreshToken: "r-old", UserID: "u1"}
	require.NoError(t, st.SelectGame(&s, "g1"))

	require.NoError(t, st.SignIn(Session{AccessToken: "new", RefreshToken: "r-new", UserID: "u1"}))
	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "g1", got.GameID)
	assert.Equal(t, []string{"g1"}, got.RecentGames)

	require.NoError(t, st.SignIn(Session{AccessToken: "other", UserID: "u2"}))
	got, err = st.Load()
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UserID)
	assert.Empty(t, got.GameID)
	assert.Empty(t, got.RecentGames)
}
