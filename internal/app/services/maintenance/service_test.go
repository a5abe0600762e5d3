package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/services/leaderboard"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/storage/memory"
)

func newFixture(t *testing.T, cfg Config) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	board := leaderboard.New(store, store, store, nil, nil)
	subs := subscriptions.New(store, store, store, nil)
	return New(cfg, board, subs, store, nil), store
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	svc, _ := newFixture(t, Config{SessionPurge: "not a cron spec"})
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestStartStopWithJobsDisabled(t *testing.T) {
	svc, _ := newFixture(t, Config{})
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestPurgeSessionsRemovesExpired(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	now := time.Now().UTC()
	mustCreate := func(id string, expires time.Time) {
		t.Helper()
		_, err := store.CreateSession(ctx, profile.Session{
			ID:        id,
			UserID:    "u1",
			TokenHash: "hash-" + id,
			ExpiresAt: expires,
		})
		if err != nil {
			t.Fatalf("create session %s: %v", id, err)
		}
	}
	mustCreate("stale", now.Add(-time.Hour))
	mustCreate("live", now.Add(time.Hour))

	if err := svc.purgeSessions(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := store.GetSessionByTokenHash(ctx, "hash-stale"); err == nil {
		t.Fatal("expired session survived purge")
	}
	if _, err := store.GetSessionByTokenHash(ctx, "hash-live"); err != nil {
		t.Fatalf("live session was purged: %v", err)
	}
}

func TestPruneUsageHonorsRetention(t *testing.T) {
	svc, store := newFixture(t, Config{UsageRetentionMonths: 2})
	ctx := context.Background()

	old := subscription.MonthKey(time.Now().AddDate(0, -6, 0))
	if _, err := store.IncrementUsage(ctx, "u1", old, 1, 0, 0); err != nil {
		t.Fatalf("seed old usage: %v", err)
	}
	current := subscription.MonthKey(time.Now())
	if _, err := store.IncrementUsage(ctx, "u1", current, 1, 0, 0); err != nil {
		t.Fatalf("seed current usage: %v", err)
	}

	if err := svc.pruneUsage(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if rows, err := store.ListUsageByMonth(ctx, old); err != nil || len(rows) != 0 {
		t.Fatalf("old usage should be gone: rows=%v err=%v", rows, err)
	}
	if rows, err := store.ListUsageByMonth(ctx, current); err != nil || len(rows) != 1 {
		t.Fatalf("current usage should remain: rows=%v err=%v", rows, err)
	}
}
