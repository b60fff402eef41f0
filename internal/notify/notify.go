// Package notify delivers game-end summaries to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Leader struct {
	DisplayName string
	Value       decimal.Decimal
}

type GameSummary struct {
	GameID  string
	Name    string
	Leaders []Leader
}

type Notifier interface {
	GameFinished(ctx context.Context, summary GameSummary) error
}

type Nop struct{}

func (Nop) GameFinished(context.Context, GameSummary) error { return nil }

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) GameFinished(ctx context.Context, summary GameSummary) error {
	var errs []error
	for _, n := range m {
		if err := n.GameFinished(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func FormatSummary(s GameSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Game over: %s\n", s.Name)
	if len(s.Leaders) == 0 {
		b.WriteString("No players.")
		return b.String()
	}
	for i, l := range s.Leaders {
		if i == 10 {
			fmt.Fprintf(&b, "…and %d more", len(s.Leaders)-10)
			break
		}
		fmt.Fprintf(&b, "%d. %s  $%s\n", i+1, l.DisplayName, l.Value.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}
