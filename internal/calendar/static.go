package calendar

import (
	"context"
	"time"
)

// StaticCalendar treats a fixed set of dates (YYYY-MM-DD, New York) as holidays.
type StaticCalendar struct {
	holidays map[string]struct{}
}

func NewStatic(dates ...string) *StaticCalendar {
	c := &StaticCalendar{holidays: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		c.holidays[d] = struct{}{}
	}
	return c
}

func (c *StaticCalendar) IsHoliday(_ context.Context, day time.Time) (bool, error) {
	_, ok := c.holidays[DayKey(day)]
	return ok, nil
}

// USHolidays2026 is the NYSE full-closure list used when no market data
// credentials are configured.
var USHolidays2026 = []string{
	"2026-01-01",
	"2026-01-19",
	"2026-02-16",
	"2026-04-03",
	"2026-05-25",
	"2026-06-19",
	"2026-07-03",
	"2026-09-07",
	"2026-11-26",
	"2026-12-25",
}
