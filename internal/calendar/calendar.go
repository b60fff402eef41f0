package calendar

import (
	"context"
	"sync"
	"time"
	_ "time/tzdata"
)

const DateLayout = "2006-01-02"

var (
	nyOnce sync.Once
	nyLoc  *time.Location
)

// NewYork returns the exchange time zone.
func NewYork() *time.Location {
	nyOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
		nyLoc = loc
	})
	return nyLoc
}

type Calendar interface {
	IsHoliday(ctx context.Context, day time.Time) (bool, error)
}

func IsWeekend(t time.Time) bool {
	switch t.In(NewYork()).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

func IsTradingDay(ctx context.Context, cal Calendar, t time.Time) (bool, error) {
	if IsWeekend(t) {
		return false, nil
	}
	holiday, err := cal.IsHoliday(ctx, t)
	if err != nil {
		return false, err
	}
	return !holiday, nil
}

// At returns the wall-clock time hh:mm in New York on t's New York date.
func At(t time.Time, hour, minute int) time.Time {
	ny := t.In(NewYork())
	return time.Date(ny.Year(), ny.Month(), ny.Day(), hour, minute, 0, 0, NewYork())
}

func Open(t time.Time) time.Time  { return At(t, 9, 30) }
func Close(t time.Time) time.Time { return At(t, 16, 0) }

// InMarketHours reports whether t falls within [09:30, 16:00] New York time.
func InMarketHours(t time.Time) bool {
	return !t.Before(Open(t)) && !t.After(Close(t))
}

func SameDay(a, b time.Time) bool {
	return a.In(NewYork()).Format(DateLayout) == b.In(NewYork()).Format(DateLayout)
}

func DayKey(t time.Time) string {
	return t.In(NewYork()).Format(DateLayout)
}
