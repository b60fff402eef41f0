package series

import (
	"time"

	"stockgame/internal/calendar"
	"stockgame/internal/model"
)

const minuteBucket = 5 * time.Minute

// BucketBounds returns the half-open [start, end) bucket containing t.
// Minute buckets are five minutes wide; day buckets follow the New York
// calendar date.
func BucketBounds(res model.Resolution, t time.Time) (time.Time, time.Time) {
	switch res {
	case model.ResolutionMinute:
		start := t.Truncate(minuteBucket)
		return start, start.Add(minuteBucket)
	case model.ResolutionHour:
		start := t.Truncate(time.Hour)
		return start, start.Add(time.Hour)
	case model.ResolutionDay:
		start := calendar.At(t, 0, 0)
		return start, start.AddDate(0, 0, 1)
	}
	return t, t
}
