package reading

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStreaksEmpty(t *testing.T) {
	current, longest := Streaks(nil, day("2026-08-24"))
	if current != 0 || longest != 0 {
		t.Fatalf("expected 0/0, got %d/%d", current, longest)
	}
}

func TestStreaksCurrentEndingToday(t *testing.T) {
	days := []time.Time{day("2026-08-22"), day("2026-08-23"), day("2026-08-24")}
	current, longest := Streaks(days, day("2026-08-24"))
	if current != 3 {
		t.Fatalf("expected current 3, got %d", current)
	}
	if longest != 3 {
		t.Fatalf("expected longest 3, got %d", longest)
	}
}

func TestStreaksEndingYesterdayStillCounts(t *testing.T) {
	days := []time.Time{day("2026-08-22"), day("2026-08-23")}
	current, _ := Streaks(days, day("2026-08-24"))
	if current != 2 {
		t.Fatalf("expected current 2, got %d", current)
	}
}

func TestStreaksBrokenRun(t *testing.T) {
	days := []time.Time{
		day("2026-08-10"), day("2026-08-11"), day("2026-08-12"), day("2026-08-13"),
		day("2026-08-20"), day("2026-08-24"),
	}
	current, longest := Streaks(days, day("2026-08-24"))
	if current != 1 {
		t.Fatalf("expected current 1, got %d", current)
	}
	if longest != 4 {
		t.Fatalf("expected longest 4, got %d", longest)
	}
}

func TestStreaksStaleHistory(t *testing.T) {
	days := []time.Time{day("2026-07-01"), day("2026-07-02")}
	current, longest := Streaks(days, day("2026-08-24"))
	if current != 0 {
		t.Fatalf("expected current 0 for stale history, got %d", current)
	}
	if longest != 2 {
		t.Fatalf("expected longest 2, got %d", longest)
	}
}

func TestStreaksDuplicatesAndOrder(t *testing.T) {
	days := []time.Time{
		day("2026-08-24"), day("2026-08-23"), day("2026-08-23"),
		day("2026-08-24").Add(5 * time.Hour),
	}
	current, longest := Streaks(days, day("2026-08-24"))
	if current != 2 || longest != 2 {
		t.Fatalf("expected 2/2, got %d/%d", current, longest)
	}
}

func TestDayTruncates(t *testing.T) {
	ts := time.Date(2026, 8, 24, 18, 30, 12, 0, time.UTC)
	got := Day(ts)
	want := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
