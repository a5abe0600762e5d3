package leaderboard

import (
	"fmt"
	"time"
)

// Boards ranked by the leaderboard service.
const (
	BoardWPM   = "wpm"
	BoardPages = "pages"
)

// Ranking periods.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "alltime"
)

// Entry is one ranked row on a board.
type Entry struct {
	Rank        int
	UserID      string
	Username    string
	DisplayName string
	Value       float64
}

// ValidBoard reports whether b names a known board.
func ValidBoard(b string) bool {
	return b == BoardWPM || b == BoardPages
}

// ValidPeriod reports whether p names a known period.
func ValidPeriod(p string) bool {
	return p == PeriodWeekly || p == PeriodMonthly || p == PeriodAllTime
}

// Bucket returns the period bucket containing t, in UTC: ISO week
// ("2026-W34") for weekly, "2026-08" for monthly and "all" for alltime.
func Bucket(period string, t time.Time) string {
	t = t.UTC()
	switch period {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return "all"
	}
}

// PeriodStart returns the UTC start of the period bucket containing t.
// For alltime it returns the zero time.
func PeriodStart(period string, t time.Time) time.Time {
	t = t.UTC()
	switch period {
	case PeriodWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return day.AddDate(0, 0, 1-weekday)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}
