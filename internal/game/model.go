package game

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockgame/internal/model"
)

const (
	MaxGameDuration = 366 * 24 * time.Hour
	inviteCodeLen   = 8
)

var DefaultBuyingPower = decimal.NewFromInt(100_000)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGameNotActive  = errors.New("game is not active")
	ErrGameFinished   = errors.New("game has finished")
	ErrNotPlayer      = errors.New("you are not a part of this game")
	ErrNotAdmin       = errors.New("only the game admin can do that")
	ErrAlreadyJoined  = errors.New("already a player in this game")
	ErrPlayerNotFound = errors.New("player not found")
	ErrCannotKickSelf = errors.New("cannot remove yourself from a game")
	ErrInvalidGame    = errors.New("invalid game")
	ErrInvalidTicker  = errors.New("ticker must be 1-5 uppercase letters, optionally with a class suffix")
)

var blockedNameFragments = []string{
	"admin",
	"shit",
	"fuck",
	"bitch",
	"nazi",
}

var tickerRE = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)

func ValidateTicker(ticker string) error {
	if !tickerRE.MatchString(strings.TrimSpace(ticker)) {
		return ErrInvalidTicker
	}
	return nil
}

// StatusAt evaluates a game's status from its schedule.
func StatusAt(g model.Game, now time.Time) model.GameStatus {
	switch {
	case now.Before(g.StartAt):
		return model.GameNotStarted
	case now.Before(g.EndAt):
		return model.GameActive
	default:
		return model.GameFinished
	}
}

func validateSchedule(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidGame)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidGame)
	}
	if end.Sub(start) > MaxGameDuration {
		return fmt.Errorf("%w: games can last at most a year", ErrInvalidGame)
	}
	return nil
}

func validateGameName(name string) error {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidGame)
	}
	if len(clean) > 64 {
		return fmt.Errorf("%w: name too long (max 64 chars)", ErrInvalidGame)
	}
	lower := strings.ToLower(clean)
	for _, fragment := range blockedNameFragments {
		if strings.Contains(lower, fragment) {
			return fmt.Errorf("%w: name contains blocked content", ErrInvalidGame)
		}
	}
	return nil
}

func generateInviteCode() (string, error) {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, inviteCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = letters[int(buf[i])%len(letters)]
	}
	return string(buf), nil
}

func displayNameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	local, _, _ := strings.Cut(email, "@")
	return sanitizeDisplayName(local)
}

func sanitizeDisplayName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "player"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "player_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}
