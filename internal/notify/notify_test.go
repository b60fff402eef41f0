package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) GameFinished(context.Context, GameSummary) error { return f.err }

func TestFormatSummary(t *testing.T) {
	got := FormatSummary(GameSummary{
		Name: "Spring League",
		Leaders: []Leader{
			{DisplayName: "ana", Value: decimal.RequireFromString("100240.5")},
			{DisplayName: "bo", Value: decimal.NewFromInt(99000)},
		},
	})
	assert.Equal(t, "🏁 Game over: Spring League\n1. ana  $100240.50\n2. bo  $99000.00", got)
}

func TestFormatSummaryTruncates(t *testing.T) {
	var leaders []Leader
	for i := 0; i < 12; i++ {
		leaders = append(leaders, Leader{DisplayName: fmt.Sprintf("p%d", i), Value: decimal.NewFromInt(1)})
	}
	got := FormatSummary(GameSummary{Name: "g", Leaders: leaders})
	assert.True(t, strings.HasSuffix(got, "…and 2 more"))
	assert.NotContains(t, got, "p10")
}

func TestMultiJoinsErrors(t *testing.T) {
	a := errors.New("telegram down")
	b := errors.New("discord down")
	err := Multi{Nop{}, failing{a}, failing{b}}.GameFinished(context.Background(), GameSummary{})
	require.Error(t, err)
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
}
