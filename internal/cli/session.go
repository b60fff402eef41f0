package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxRecentGames = 5

var (
	ErrNoSession      = errors.New("no saved session")
	ErrNoGameSelected = errors.New("no game selected: run `stk use <game-id>` or pass --game")
)

// Session is what login leaves on disk: the auth tokens plus the game that
// game-scoped commands act on when --game is not given.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Email        string `json:"email"`
	UserID       string `json:"user_id"`
	GameID       string `json:"game_id,omitempty"`
	// RecentGames lists previously selected game IDs, newest first.
	RecentGames []string `json:"recent_games,omitempty"`
}

// ActiveGame picks the explicit game ID when given, else the selected one.
func (s Session) ActiveGame(explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if s.GameID == "" {
		return "", ErrNoGameSelected
	}
	return s.GameID, nil
}

func (s *Session) selectGame(gameID string) {
	s.GameID = gameID
	recent := []string{gameID}
	for _, id := range s.RecentGames {
		if id != gameID && len(recent) < maxRecentGames {
			recent = append(recent, id)
		}
	}
	s.RecentGames = recent
}

// SessionStore persists a single Session as JSON.
type SessionStore struct {
	path string
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// DefaultSessionStore keeps the session under ~/.stk/session.json.
func DefaultSessionStore() (*SessionStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewSessionStore(filepath.Join(home, ".stk", "session.json")), nil
}

func (st *SessionStore) Load() (Session, error) {
	body, err := os.ReadFile(st.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", st.path, err)
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (st *SessionStore) Save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o700); err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(st.path, body, 0o600)
}

// SignIn stores fresh credentials. The game selection survives only when
// the same user signs back in.
func (st *SessionStore) SignIn(next Session) error {
	prev, err := st.Load()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	if prev.UserID != "" && prev.UserID == next.UserID {
		next.GameID = prev.GameID
		next.RecentGames = prev.RecentGames
	} else {
		next.GameID = ""
		next.RecentGames = nil
	}
	return st.Save(next)
}

// SelectGame makes gameID the default for game-scoped commands and saves.
func (st *SessionStore) SelectGame(s *Session, gameID string) error {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return ErrNoGameSelected
	}
	s.selectGame(gameID)
	return st.Save(*s)
}

func (st *SessionStore) Clear() error {
	if err := os.Remove(st.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
