package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// AlpacaCalendar derives holidays from the broker's trading calendar: a
// weekday missing from the published session list is a holiday. Sessions are
// fetched once per year and cached.
type AlpacaCalendar struct {
	client calendarClient
	log    *slog.Logger

	mu    sync.Mutex
	years map[int]map[string]struct{}
}

func NewAlpaca(apiKey, apiSecret, baseURL string, logger *slog.Logger) *AlpacaCalendar {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return newAlpacaWithClient(client, logger)
}

func newAlpacaWithClient(client calendarClient, logger *slog.Logger) *AlpacaCalendar {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlpacaCalendar{
		client: client,
		log:    logger,
		years:  map[int]map[string]struct{}{},
	}
}

func (c *AlpacaCalendar) IsHoliday(_ context.Context, day time.Time) (bool, error) {
	if IsWeekend(day) {
		return false, nil
	}
	ny := day.In(NewYork())
	sessions, err := c.sessions(ny.Year())
	if err != nil {
		return false, err
	}
	if len(sessions) == 0 {
		return false, nil
	}
	_, open := sessions[ny.Format(DateLayout)]
	return !open, nil
}

func (c *AlpacaCalendar) sessions(year int) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.years[year]; ok {
		return s, nil
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, NewYork())
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, NewYork())
	days, err := c.client.GetCalendar(alpaca.GetCalendarRequest{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("fetching trading calendar for %d: %w", year, err)
	}
	s := make(map[string]struct{}, len(days))
	for _, d := range days {
		s[d.Date] = struct{}{}
	}
	c.years[year] = s
	c.log.Info("loaded trading calendar", "year", year, "sessions", len(s))
	return s, nil
}
