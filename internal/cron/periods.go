package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// onceMarker gates once-per-period jobs via Redis SETNX markers.
type onceMarker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CounterKey(name string) string
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday 00:00 UTC opening the week containing t.
func weekStart(t time.Time) time.Time {
	day := dayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// periodBounds returns the closed-open [start, end) range of the period
// containing now.
func periodBounds(period enums.PeriodType, now time.Time) (time.Time, time.Time) {
	switch period {
	case enums.PeriodWeekly:
		start := weekStart(now)
		return start, start.AddDate(0, 0, 7)
	case enums.PeriodMonthly:
		start := monthStart(now)
		return start, start.AddDate(0, 1, 0)
	default:
		start := dayStart(now)
		return start, start.AddDate(0, 0, 1)
	}
}

// periodStamp identifies the period instance for run-once markers.
func periodStamp(period enums.PeriodType, now time.Time) string {
	now = now.UTC()
	switch period {
	case enums.PeriodWeekly:
		year, week := now.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case enums.PeriodMonthly:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02")
	}
}

// markerTTL keeps run-once markers alive well past the period they gate.
func markerTTL(period enums.PeriodType) time.Duration {
	switch period {
	case enums.PeriodWeekly:
		return 8 * 24 * time.Hour
	case enums.PeriodMonthly:
		return 32 * 24 * time.Hour
	default:
		return 25 * time.Hour
	}
}
