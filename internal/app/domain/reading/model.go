package reading

import (
	"sort"
	"time"
)

// Submission is a user-reported reading session: pages read from a book
// on a calendar day. At most one submission exists per (user, book, day).
type Submission struct {
	ID        string
	UserID    string
	BookID    string
	PagesRead int
	ReadOn    time.Time
	CreatedAt time.Time
}

// Stats summarizes a reader's submission history.
type Stats struct {
	TotalPages       int
	TotalSubmissions int
	BooksRead        int
	PagesThisWeek    int
	PagesThisMonth   int
	CurrentStreak    int
	LongestStreak    int
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of t's ISO week, UTC midnight.
func WeekStart(t time.Time) time.Time {
	day := Day(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, 1-weekday)
}

// MonthStart returns the first day of t's UTC month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Streaks computes the current and longest run of consecutive days in
// days, which may contain duplicates and be unordered. The current
// streak counts back from today; a streak ending yesterday still counts.
func Streaks(days []time.Time, today time.Time) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	seen := make(map[time.Time]bool, len(days))
	for _, d := range days {
		seen[Day(d)] = true
	}
	unique := make([]time.Time, 0, len(seen))
	for d := range seen {
		unique = append(unique, d)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Before(unique[j]) })

	run := 1
	longest = 1
	for i := 1; i < len(unique); i++ {
		if unique[i].Sub(unique[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	anchor := Day(today)
	last := unique[len(unique)-1]
	if last.Equal(anchor) || last.Equal(anchor.Add(-24*time.Hour)) {
		current = 1
		for i := len(unique) - 1; i > 0; i-- {
			if unique[i].Sub(unique[i-1]) == 24*time.Hour {
				current++
			} else {
				break
			}
		}
	}
	return current, longest
}
