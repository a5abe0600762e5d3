package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/app/storage/memory"
	apperrors "github.com/readspeed/backend/internal/errors"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, store, store, nil), store
}

func seedProfile(t *testing.T, store *memory.Store, tier string) profile.Profile {
	t.Helper()
	p, err := store.CreateProfile(context.Background(), profile.Profile{
		Email:    "amy@example.com",
		Username: "amy",
		Tier:     tier,
		Role:     profile.RoleUser,
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func TestLimitsForFallsBackToDefaults(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	got := svc.LimitsFor(ctx, subscription.TierFree)
	if got.AssessmentsPerMonth != 5 || got.SubmissionsPerDay != 3 {
		t.Fatalf("unexpected default limits: %+v", got)
	}

	custom := subscription.Limits{Tier: subscription.TierFree, AssessmentsPerMonth: 99, SubmissionsPerDay: 9}
	if _, err := store.SetLimits(ctx, custom); err != nil {
		t.Fatalf("set limits: %v", err)
	}
	got = svc.LimitsFor(ctx, subscription.TierFree)
	if got.AssessmentsPerMonth != 99 {
		t.Fatalf("expected stored limits, got %+v", got)
	}
}

func TestChangeTier(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p := seedProfile(t, store, subscription.TierFree)

	updated, err := svc.ChangeTier(ctx, p.ID, subscription.TierPro)
	if err != nil {
		t.Fatalf("change tier: %v", err)
	}
	if updated.Tier != subscription.TierPro {
		t.Fatalf("expected pro tier, got %q", updated.Tier)
	}

	stored, err := store.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if stored.Tier != subscription.TierPro {
		t.Fatalf("tier change not persisted: %q", stored.Tier)
	}
}

func TestChangeTierRejectsUnknownTier(t *testing.T) {
	svc, store := newService(t)
	p := seedProfile(t, store, subscription.TierFree)

	_, err := svc.ChangeTier(context.Background(), p.ID, "platinum")
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != apperrors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestChangeTierIsIdempotent(t *testing.T) {
	svc, store := newService(t)
	p := seedProfile(t, store, subscription.TierReader)

	updated, err := svc.ChangeTier(context.Background(), p.ID, subscription.TierReader)
	if err != nil {
		t.Fatalf("change tier: %v", err)
	}
	if updated.Tier != subscription.TierReader {
		t.Fatalf("unexpected tier %q", updated.Tier)
	}
}

func TestCheckAssessmentQuota(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p := seedProfile(t, store, subscription.TierFree)
	month := subscription.MonthKey(time.Now())

	for i := 0; i < 5; i++ {
		if err := svc.CheckAssessmentQuota(ctx, p.ID, subscription.TierFree); err != nil {
			t.Fatalf("attempt %d unexpectedly blocked: %v", i, err)
		}
		if _, err := store.IncrementUsage(ctx, p.ID, month, 1, 0, 0); err != nil {
			t.Fatalf("increment usage: %v", err)
		}
	}

	err := svc.CheckAssessmentQuota(ctx, p.ID, subscription.TierFree)
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != apperrors.CodeQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
	if svcErr.HTTPStatus != 403 {
		t.Fatalf("expected status 403, got %d", svcErr.HTTPStatus)
	}
}

func TestCheckAssessmentQuotaUnlimited(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p := seedProfile(t, store, subscription.TierPro)
	month := subscription.MonthKey(time.Now())

	if _, err := store.IncrementUsage(ctx, p.ID, month, 1000, 0, 0); err != nil {
		t.Fatalf("increment usage: %v", err)
	}
	if err := svc.CheckAssessmentQuota(ctx, p.ID, subscription.TierPro); err != nil {
		t.Fatalf("pro tier should be unlimited, got %v", err)
	}
}

func TestCheckSubmissionQuota(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p := seedProfile(t, store, subscription.TierFree)
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := svc.CheckSubmissionQuota(ctx, p.ID, subscription.TierFree, day); err != nil {
			t.Fatalf("submission %d unexpectedly blocked: %v", i, err)
		}
		_, err := store.CreateSubmission(ctx, reading.Submission{
			UserID:    p.ID,
			BookID:    "book-" + string(rune('a'+i)),
			PagesRead: 10,
			ReadOn:    day,
		})
		if err != nil {
			t.Fatalf("create submission: %v", err)
		}
	}

	err := svc.CheckSubmissionQuota(ctx, p.ID, subscription.TierFree, day)
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != apperrors.CodeQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}

	nextDay := day.AddDate(0, 0, 1)
	if err := svc.CheckSubmissionQuota(ctx, p.ID, subscription.TierFree, nextDay); err != nil {
		t.Fatalf("next day should reset the quota: %v", err)
	}
}

func TestUsageForZeroWhenMissing(t *testing.T) {
	svc, _ := newService(t)

	usage, err := svc.UsageFor(context.Background(), "nobody", "2026-08")
	if err != nil {
		t.Fatalf("usage for: %v", err)
	}
	if usage.AssessmentsTaken != 0 || usage.SubmissionsCount != 0 || usage.PagesRead != 0 {
		t.Fatalf("expected zero usage, got %+v", usage)
	}
	if usage.UserID != "nobody" || usage.Month != "2026-08" {
		t.Fatalf("expected identifiers filled in, got %+v", usage)
	}
}

func TestOverview(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p := seedProfile(t, store, subscription.TierReader)

	if err := svc.ConsumeAssessment(ctx, p.ID); err != nil {
		t.Fatalf("consume assessment: %v", err)
	}
	if err := svc.RecordReading(ctx, p.ID, 42); err != nil {
		t.Fatalf("record reading: %v", err)
	}

	ov, err := svc.Overview(ctx, p.ID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Tier != subscription.TierReader {
		t.Fatalf("unexpected tier %q", ov.Tier)
	}
	if ov.Limits.AssessmentsPerMonth != 20 {
		t.Fatalf("unexpected limits %+v", ov.Limits)
	}
	if ov.Usage.AssessmentsTaken != 1 || ov.Usage.SubmissionsCount != 1 || ov.Usage.PagesRead != 42 {
		t.Fatalf("unexpected usage %+v", ov.Usage)
	}
}

func TestSetLimitsValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.SetLimits(ctx, subscription.Limits{Tier: "gold"}); apperrors.GetServiceError(err) == nil {
		t.Fatalf("expected validation error for unknown tier, got %v", err)
	}
	if _, err := svc.SetLimits(ctx, subscription.Limits{Tier: subscription.TierFree, AssessmentsPerMonth: -2}); apperrors.GetServiceError(err) == nil {
		t.Fatalf("expected validation error for negative limit, got %v", err)
	}

	saved, err := svc.SetLimits(ctx, subscription.Limits{
		Tier:                "  Reader ",
		AssessmentsPerMonth: 50,
		SubmissionsPerDay:   subscription.Unlimited,
		CanCreateBooks:      true,
	})
	if err != nil {
		t.Fatalf("set limits: %v", err)
	}
	if saved.Tier != subscription.TierReader {
		t.Fatalf("expected normalized tier, got %q", saved.Tier)
	}
}

func TestListLimitsMergesDefaults(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	if _, err := store.SetLimits(ctx, subscription.Limits{Tier: subscription.TierFree, AssessmentsPerMonth: 7, SubmissionsPerDay: 2}); err != nil {
		t.Fatalf("set limits: %v", err)
	}

	all, err := svc.ListLimits(ctx)
	if err != nil {
		t.Fatalf("list limits: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(all))
	}
	if all[0].Tier != subscription.TierFree || all[0].AssessmentsPerMonth != 7 {
		t.Fatalf("expected stored free limits first, got %+v", all[0])
	}
	if all[2].Tier != subscription.TierPro || all[2].AssessmentsPerMonth != subscription.Unlimited {
		t.Fatalf("expected default pro limits, got %+v", all[2])
	}
}

func TestPruneUsage(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	if _, err := store.IncrementUsage(ctx, "u1", "2020-01", 1, 0, 0); err != nil {
		t.Fatalf("increment usage: %v", err)
	}
	current := subscription.MonthKey(time.Now())
	if _, err := store.IncrementUsage(ctx, "u1", current, 1, 0, 0); err != nil {
		t.Fatalf("increment usage: %v", err)
	}

	deleted, err := svc.PruneUsage(ctx, 12)
	if err != nil {
		t.Fatalf("prune usage: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 row pruned, got %d", deleted)
	}

	if _, err := store.GetUsage(ctx, "u1", "2020-01"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected old row gone, got %v", err)
	}
	if _, err := store.GetUsage(ctx, "u1", current); err != nil {
		t.Fatalf("current month row should survive: %v", err)
	}
}
