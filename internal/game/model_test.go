package game

import (
	"strings"
	"testing"
	"time"

	"stockgame/internal/model"
)

func TestValidateTicker(t *testing.T) {
	valid := []string{"A", "AAPL", "GOOGL", "BRK.B"}
	for _, s := range valid {
		if err := ValidateTicker(s); err != nil {
			t.Fatalf("expected ticker %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "aapl", "TOOLONG", "BRK.", "AB1", "A_B"}
	for _, s := range invalid {
		if err := ValidateTicker(s); err == nil {
			t.Fatalf("expected ticker %q to fail", s)
		}
	}
}

func TestStatusAt(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	g := model.Game{StartAt: start, EndAt: start.Add(48 * time.Hour)}
	tests := []struct {
		at   time.Time
		want model.GameStatus
	}{
		{start.Add(-time.Second), model.GameNotStarted},
		{start, model.GameActive},
		{start.Add(47 * time.Hour), model.GameActive},
		{start.Add(48 * time.Hour), model.GameFinished},
		{start.Add(100 * time.Hour), model.GameFinished},
	}
	for _, tc := range tests {
		if got := StatusAt(g, tc.at); got != tc.want {
			t.Fatalf("at=%s got=%s want=%s", tc.at, got, tc.want)
		}
	}
}

func TestValidateSchedule(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	if err := validateSchedule(start, start.Add(time.Hour)); err != nil {
		t.Fatalf("expected valid schedule: %v", err)
	}
	if err := validateSchedule(start, start); err == nil {
		t.Fatalf("expected empty schedule to fail")
	}
	if err := validateSchedule(start, start.Add(MaxGameDuration+time.Hour)); err == nil {
		t.Fatalf("expected overlong schedule to fail")
	}
}

func TestValidateGameName(t *testing.T) {
	if err := validateGameName("Spring League"); err != nil {
		t.Fatalf("expected valid game name: %v", err)
	}
	if err := validateGameName("admin league"); err == nil {
		t.Fatalf("expected blocked name to fail")
	}
	if err := validateGameName(strings.Repeat("x", 65)); err == nil {
		t.Fatalf("expected long name to fail")
	}
}

func TestGenerateInviteCode(t *testing.T) {
	code, err := generateInviteCode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != inviteCodeLen {
		t.Fatalf("got len %d want %d", len(code), inviteCodeLen)
	}
	if strings.ContainsAny(code, "01IO") {
		t.Fatalf("invite code %q contains ambiguous characters", code)
	}
}

func TestDisplayNames(t *testing.T) {
	tests := []struct {
		name, email, want string
	}{
		{"Ana Lopez", "", "ana_lopez"},
		{"", "Bo.Smith@example.com", "bo_smith"},
		{"", "", "player"},
		{"x", "", "player_x"},
	}
	for _, tc := range tests {
		if got := pickDisplayName(tc.name, tc.email); got != tc.want {
			t.Fatalf("pickDisplayName(%q, %q) = %q want %q", tc.name, tc.email, got, tc.want)
		}
	}
}
