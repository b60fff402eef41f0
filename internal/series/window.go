package series

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockgame/internal/calendar"
	"stockgame/internal/model"
)

type Window string

const (
	OneDay      Window = "ONE_DAY"
	OneWeek     Window = "ONE_WEEK"
	OneMonth    Window = "ONE_MONTH"
	ThreeMonths Window = "THREE_MONTHS"
	OneYear     Window = "ONE_YEAR"
	All         Window = "ALL"
)

var ErrInvalidWindow = errors.New("latest must be one of ONE_DAY, ONE_WEEK, ONE_MONTH, THREE_MONTHS, ONE_YEAR, ALL")

func ParseWindow(s string) (Window, error) {
	w := Window(strings.ToUpper(strings.TrimSpace(s)))
	switch w {
	case OneDay, OneWeek, OneMonth, ThreeMonths, OneYear, All:
		return w, nil
	case "":
		return All, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidWindow)
}

const (
	oneDayPoints = 79 // 09:30 through 16:00 every five minutes
	maxWalkBack  = 14
)

// Plan describes how a window's timestamps are generated.
type Plan struct {
	Window     Window
	Resolution model.Resolution
	Base       time.Time
	// Step is used for intraday plans; daily plans step by calendar day so
	// the 16:00 sample survives DST changes.
	Step  time.Duration
	Daily bool
	// Count caps the number of generated timestamps; zero means unbounded.
	Count int
	// MarketHoursOnly drops intraday timestamps outside 09:30-16:00.
	MarketHoursOnly bool
}

func PlanFor(ctx context.Context, cal calendar.Calendar, w Window, now, gameStart time.Time) (Plan, error) {
	now = now.In(calendar.NewYork())
	switch w {
	case OneDay:
		day := now
		if now.Before(calendar.Open(now)) {
			day = day.AddDate(0, 0, -1)
		}
		for i := 0; ; i++ {
			ok, err := calendar.IsTradingDay(ctx, cal, day)
			if err != nil {
				return Plan{}, err
			}
			if ok {
				break
			}
			if i == maxWalkBack {
				return Plan{}, fmt.Errorf("no trading day in the last %d days", maxWalkBack)
			}
			day = day.AddDate(0, 0, -1)
		}
		return Plan{
			Window:          w,
			Resolution:      model.ResolutionMinute,
			Base:            calendar.Open(day),
			Step:            minuteBucket,
			Count:           oneDayPoints,
			MarketHoursOnly: true,
		}, nil

	case OneWeek:
		days := 7
		if now.Before(calendar.Open(now)) {
			days = 8
		}
		return Plan{
			Window:          w,
			Resolution:      model.ResolutionHour,
			Base:            calendar.Open(now).AddDate(0, 0, -days),
			Step:            time.Hour,
			MarketHoursOnly: true,
		}, nil

	case OneMonth, ThreeMonths, OneYear:
		days := map[Window]int{OneMonth: 30, ThreeMonths: 90, OneYear: 365}[w]
		return Plan{
			Window:     w,
			Resolution: model.ResolutionDay,
			Base:       calendar.Close(now).AddDate(0, 0, -days),
			Daily:      true,
		}, nil

	case All:
		return Plan{
			Window:     w,
			Resolution: model.ResolutionDay,
			Base:       calendar.Close(gameStart),
			Daily:      true,
		}, nil
	}
	return Plan{}, fmt.Errorf("%q: %w", w, ErrInvalidWindow)
}

func (p Plan) next(t time.Time) time.Time {
	if p.Daily {
		return t.AddDate(0, 0, 1)
	}
	return t.Add(p.Step)
}

// Timestamps steps forward from Base, skipping weekends and holidays, until
// Count timestamps are produced or a timestamp passes now.
func (p Plan) Timestamps(ctx context.Context, cal calendar.Calendar, now time.Time) ([]time.Time, error) {
	var out []time.Time
	tradingDays := map[string]bool{}
	for t := p.Base; !t.After(now); t = p.next(t) {
		if p.Count > 0 && len(out) >= p.Count {
			break
		}
		if p.MarketHoursOnly && !calendar.InMarketHours(t) {
			continue
		}
		key := calendar.DayKey(t)
		ok, seen := tradingDays[key]
		if !seen {
			var err error
			ok, err = calendar.IsTradingDay(ctx, cal, t)
			if err != nil {
				return nil, err
			}
			tradingDays[key] = ok
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}
