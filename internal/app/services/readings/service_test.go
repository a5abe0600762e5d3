package readings

import (
	"context"
	"testing"
	"time"

	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/services/leaderboard"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/storage/memory"
	apperrors "github.com/readspeed/backend/internal/errors"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	subs := subscriptions.New(store, store, store, nil)
	board := leaderboard.New(store, store, store, nil, nil)
	return New(store, store, subs, board, nil), store
}

func seedUser(t *testing.T, store *memory.Store, tier string) profile.Profile {
	t.Helper()
	p, err := store.CreateProfile(context.Background(), profile.Profile{
		Email:       "amy@example.com",
		Username:    "amy",
		Tier:        tier,
		ReadingGoal: 20,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return p
}

func seedBook(t *testing.T, store *memory.Store, title string) book.Book {
	t.Helper()
	b, err := store.CreateBook(context.Background(), book.Book{Title: title, Author: "A", TotalPages: 300})
	if err != nil {
		t.Fatalf("seed book %s: %v", title, err)
	}
	return b
}

func TestSubmit(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	user := seedUser(t, store, subscription.TierPro)
	b := seedBook(t, store, "Dune")

	sub, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 25})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ID == "" || sub.UserID != user.ID {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if !sub.ReadOn.Equal(reading.Day(time.Now())) {
		t.Fatalf("zero read_on should default to today, got %v", sub.ReadOn)
	}

	// The monthly counters ride behind the submission.
	usage, err := store.GetUsage(ctx, user.ID, subscription.MonthKey(time.Now()))
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if usage.SubmissionsCount != 1 || usage.PagesRead != 25 {
		t.Fatalf("usage not recorded: %+v", usage)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	user := seedUser(t, store, subscription.TierPro)
	b := seedBook(t, store, "Dune")

	if _, err := svc.Submit(ctx, user, SubmitInput{Pages: 10}); apperrors.GetServiceError(err) == nil {
		t.Fatalf("missing book_id should fail, got %v", err)
	}
	if _, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 0}); apperrors.GetServiceError(err) == nil {
		t.Fatalf("zero pages should fail, got %v", err)
	}
	if _, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 6000}); apperrors.GetServiceError(err) == nil {
		t.Fatalf("absurd pages should fail, got %v", err)
	}

	tomorrow := time.Now().AddDate(0, 0, 1)
	_, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 10, ReadOn: tomorrow})
	if apperrors.GetServiceError(err) == nil {
		t.Fatalf("future read_on should fail, got %v", err)
	}

	_, err = svc.Submit(ctx, user, SubmitInput{BookID: "missing", Pages: 10})
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != apperrors.CodeNotFound {
		t.Fatalf("unknown book should be NOT_FOUND, got %v", err)
	}
}

func TestSubmitDuplicate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	user := seedUser(t, store, subscription.TierPro)
	b := seedBook(t, store, "Dune")

	if _, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 10}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 15})
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != apperrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestSubmitQuota(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	user := seedUser(t, store, subscription.TierFree)

	for i := 0; i < 3; i++ {
		b := seedBookN(t, store, i)
		if _, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 10}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	extra := seedBookN(t, store, 99)
	_, err := svc.Submit(ctx, user, SubmitInput{BookID: extra.ID, Pages: 10})
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != apperrors.CodeQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED on 4th free-tier submission, got %v", err)
	}
}

func seedBookN(t *testing.T, store *memory.Store, n int) book.Book {
	t.Helper()
	b, err := store.CreateBook(context.Background(), book.Book{Title: "Book", Author: "A", TotalPages: 100 + n})
	if err != nil {
		t.Fatalf("seed book %d: %v", n, err)
	}
	return b
}

func TestDeleteOwnership(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	user := seedUser(t, store, subscription.TierPro)
	b := seedBook(t, store, "Dune")

	sub, err := svc.Submit(ctx, user, SubmitInput{BookID: b.ID, Pages: 10})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	stranger := profile.Profile{ID: "stranger", Role: profile.RoleUser}
	if err := svc.Delete(ctx, stranger, sub.ID); apperrors.GetServiceError(err) == nil {
		t.Fatalf("stranger delete should be forbidden, got %v", err)
	}

	admin := profile.Profile{ID: "root", Role: profile.RoleAdmin}
	if err := svc.Delete(ctx, admin, sub.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestStats(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	user := seedUser(t, store, subscription.TierPro)
	b1 := seedBook(t, store, "Dune")
	b2 := seedBook(t, store, "Foundation")

	today := reading.Day(time.Now())
	yesterday := today.AddDate(0, 0, -1)
	subs := []reading.Submission{
		{UserID: user.ID, BookID: b1.ID, PagesRead: 25, ReadOn: today},
		{UserID: user.ID, BookID: b2.ID, PagesRead: 10, ReadOn: today},
		{UserID: user.ID, BookID: b1.ID, PagesRead: 30, ReadOn: yesterday},
	}
	for _, sub := range subs {
		if _, err := store.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("seed submission: %v", err)
		}
	}

	got, err := svc.Stats(ctx, user)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.TotalPages != 65 || got.TotalSubmissions != 3 || got.BooksRead != 2 {
		t.Fatalf("unexpected totals: %+v", got.Stats)
	}
	if got.CurrentStreak != 2 || got.LongestStreak != 2 {
		t.Fatalf("unexpected streaks: current=%d longest=%d", got.CurrentStreak, got.LongestStreak)
	}
	if got.PagesToday != 35 {
		t.Fatalf("pages today: got %d", got.PagesToday)
	}
	if got.GoalProgress != 35.0/20.0 {
		t.Fatalf("goal progress: got %v", got.GoalProgress)
	}
}

func TestStatsEmpty(t *testing.T) {
	svc, store := newService(t)
	user := seedUser(t, store, subscription.TierFree)

	got, err := svc.Stats(context.Background(), user)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.TotalPages != 0 || got.CurrentStreak != 0 || got.GoalProgress != 0 {
		t.Fatalf("expected zero stats, got %+v", got)
	}
}
