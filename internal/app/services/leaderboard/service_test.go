package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/storage/memory"
	apperrors "github.com/readspeed/backend/internal/errors"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, store, store, nil, nil), store
}

func seedReader(t *testing.T, store *memory.Store, username string) profile.Profile {
	t.Helper()
	p, err := store.CreateProfile(context.Background(), profile.Profile{
		Email:       username + "@example.com",
		Username:    username,
		DisplayName: username,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return p
}

func TestBucketKey(t *testing.T) {
	jan1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := bucketKey(PeriodWeekly, jan1); got != "2026-W01" {
		t.Fatalf("weekly bucket: got %q", got)
	}
	// 2024-12-30 is a Monday belonging to ISO week 1 of 2025.
	spill := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	if got := bucketKey(PeriodWeekly, spill); got != "2025-W01" {
		t.Fatalf("year-boundary bucket: got %q", got)
	}
	if got := bucketKey(PeriodMonthly, jan1); got != "2026-01" {
		t.Fatalf("monthly bucket: got %q", got)
	}
	if got := bucketKey(PeriodAllTime, jan1); got != "all" {
		t.Fatalf("alltime bucket: got %q", got)
	}
	if got := cacheKey(BoardWPM, PeriodMonthly, jan1); got != "lb:wpm:2026-01" {
		t.Fatalf("cache key: got %q", got)
	}
}

func TestPeriodStart(t *testing.T) {
	wednesday := time.Date(2026, 8, 19, 15, 30, 0, 0, time.UTC)
	monday := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	if got := periodStart(PeriodWeekly, wednesday); !got.Equal(monday) {
		t.Fatalf("week start of wednesday: got %v", got)
	}
	sunday := time.Date(2026, 8, 23, 1, 0, 0, 0, time.UTC)
	if got := periodStart(PeriodWeekly, sunday); !got.Equal(monday) {
		t.Fatalf("week start of sunday: got %v", got)
	}
	if got := periodStart(PeriodMonthly, wednesday); !got.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("month start: got %v", got)
	}
	if got := periodStart(PeriodAllTime, wednesday); !got.IsZero() {
		t.Fatalf("alltime start should be zero, got %v", got)
	}
}

func TestTopPagesFromStore(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	u1 := seedReader(t, store, "amy")
	u2 := seedReader(t, store, "bob")

	today := reading.Day(time.Now())
	subs := []reading.Submission{
		{UserID: u1.ID, BookID: "b1", PagesRead: 60, ReadOn: today},
		{UserID: u1.ID, BookID: "b2", PagesRead: 40, ReadOn: today},
		{UserID: u2.ID, BookID: "b1", PagesRead: 120, ReadOn: today},
	}
	for _, sub := range subs {
		if _, err := store.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("seed submission: %v", err)
		}
	}

	top, err := svc.Top(ctx, BoardPages, PeriodAllTime, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].UserID != u2.ID || top[0].Value != 120 || top[0].Rank != 1 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].UserID != u1.ID || top[1].Value != 100 || top[1].Rank != 2 {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}
	if top[0].Username != "bob" {
		t.Fatalf("entries must carry profile data: %+v", top[0])
	}
}

func TestTopWPMFromStore(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	u1 := seedReader(t, store, "amy")
	u2 := seedReader(t, store, "bob")

	results := []assessment.Result{
		{UserID: u1.ID, TextID: "t1", SessionID: "s1", WPM: 250},
		{UserID: u1.ID, TextID: "t1", SessionID: "s2", WPM: 310},
		{UserID: u2.ID, TextID: "t1", SessionID: "s3", WPM: 280},
	}
	for _, r := range results {
		if _, err := store.CreateResult(ctx, r); err != nil {
			t.Fatalf("seed result: %v", err)
		}
	}

	top, err := svc.Top(ctx, BoardWPM, PeriodAllTime, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != u1.ID || top[0].Value != 310 {
		t.Fatalf("expected amy leading at 310, got %+v", top)
	}
}

func TestWeeklyExcludesOldSubmissions(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	u1 := seedReader(t, store, "amy")

	old := reading.Day(time.Now().AddDate(0, 0, -10))
	if _, err := store.CreateSubmission(ctx, reading.Submission{UserID: u1.ID, BookID: "b1", PagesRead: 500, ReadOn: old}); err != nil {
		t.Fatalf("seed old submission: %v", err)
	}

	weekly, err := svc.Top(ctx, BoardPages, PeriodWeekly, 10)
	if err != nil {
		t.Fatalf("top weekly: %v", err)
	}
	if len(weekly) != 0 {
		t.Fatalf("10-day-old submission must not rank weekly: %+v", weekly)
	}

	all, err := svc.Top(ctx, BoardPages, PeriodAllTime, 10)
	if err != nil {
		t.Fatalf("top alltime: %v", err)
	}
	if len(all) != 1 || all[0].Value != 500 {
		t.Fatalf("alltime should include it: %+v", all)
	}
}

func TestRank(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	u1 := seedReader(t, store, "amy")
	u2 := seedReader(t, store, "bob")

	today := reading.Day(time.Now())
	if _, err := store.CreateSubmission(ctx, reading.Submission{UserID: u1.ID, BookID: "b1", PagesRead: 50, ReadOn: today}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.CreateSubmission(ctx, reading.Submission{UserID: u2.ID, BookID: "b1", PagesRead: 80, ReadOn: today}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	entry, err := svc.Rank(ctx, BoardPages, PeriodAllTime, u1.ID)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if entry == nil || entry.Rank != 2 || entry.Value != 50 {
		t.Fatalf("unexpected rank entry: %+v", entry)
	}

	unranked, err := svc.Rank(ctx, BoardPages, PeriodAllTime, "ghost")
	if err != nil {
		t.Fatalf("rank unranked: %v", err)
	}
	if unranked != nil {
		t.Fatalf("expected nil for unranked reader, got %+v", unranked)
	}
}

func TestValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Top(ctx, "speed", PeriodWeekly, 10)
	if apperrors.GetServiceError(err) == nil {
		t.Fatalf("expected validation error for board, got %v", err)
	}
	_, err = svc.Top(ctx, BoardWPM, "hourly", 10)
	if apperrors.GetServiceError(err) == nil {
		t.Fatalf("expected validation error for period, got %v", err)
	}
}

func TestRecordsAreNoopsWithoutCache(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if err := svc.RecordAssessment(ctx, "u1", 300); err != nil {
		t.Fatalf("record assessment: %v", err)
	}
	if err := svc.RecordPages(ctx, "u1", 25); err != nil {
		t.Fatalf("record pages: %v", err)
	}
	if err := svc.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if svc.CacheEnabled() {
		t.Fatal("cache should be disabled")
	}
}
