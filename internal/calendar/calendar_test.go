package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendarClient struct {
	days  []alpaca.CalendarDay
	err   error
	calls int
}

func (f *fakeCalendarClient) GetCalendar(alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	f.calls++
	return f.days, f.err
}

func ny(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, NewYork())
}

func TestIsTradingDay(t *testing.T) {
	cal := NewStatic("2026-07-03")
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday", ny(2026, 7, 2, 12, 0), true},
		{"holiday", ny(2026, 7, 3, 12, 0), false},
		{"saturday", ny(2026, 7, 4, 12, 0), false},
		{"sunday", ny(2026, 7, 5, 12, 0), false},
		{"utc late evening is previous ny day", time.Date(2026, 7, 4, 2, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := IsTradingDay(context.Background(), cal, tc.at)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInMarketHours(t *testing.T) {
	assert.True(t, InMarketHours(ny(2026, 3, 2, 9, 30)))
	assert.True(t, InMarketHours(ny(2026, 3, 2, 16, 0)))
	assert.False(t, InMarketHours(ny(2026, 3, 2, 9, 29)))
	assert.False(t, InMarketHours(ny(2026, 3, 2, 16, 1)))
}

func TestAlpacaCalendarMissingWeekdayIsHoliday(t *testing.T) {
	client := &fakeCalendarClient{days: []alpaca.CalendarDay{
		{Date: "2026-07-02"},
		{Date: "2026-07-06"},
	}}
	cal := newAlpacaWithClient(client, nil)
	ctx := context.Background()

	holiday, err := cal.IsHoliday(ctx, ny(2026, 7, 3, 10, 0))
	require.NoError(t, err)
	assert.True(t, holiday)

	holiday, err = cal.IsHoliday(ctx, ny(2026, 7, 2, 10, 0))
	require.NoError(t, err)
	assert.False(t, holiday)

	holiday, err = cal.IsHoliday(ctx, ny(2026, 7, 4, 10, 0))
	require.NoError(t, err)
	assert.False(t, holiday, "weekends are not reported as holidays")

	assert.Equal(t, 1, client.calls, "sessions are cached per year")
}

func TestAlpacaCalendarError(t *testing.T) {
	cal := newAlpacaWithClient(&fakeCalendarClient{err: errors.New("boom")}, nil)
	_, err := cal.IsHoliday(context.Background(), ny(2026, 7, 2, 10, 0))
	require.Error(t, err)
}
