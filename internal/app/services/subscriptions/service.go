// Package subscriptions enforces tier limits and tracks monthly usage.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/storage"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
)

// Service resolves tier limits and meters per-user usage.
type Service struct {
	store    storage.SubscriptionStore
	profiles storage.ProfileStore
	readings storage.ReadingStore
	log      *logging.Logger
}

// New constructs a subscription service. The reading store backs the
// per-day submission quota check.
func New(store storage.SubscriptionStore, profiles storage.ProfileStore, readings storage.ReadingStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("subscriptions")
	}
	return &Service{store: store, profiles: profiles, readings: readings, log: log}
}

// Overview is a reader's tier with its limits and current-month usage.
type Overview struct {
	Tier   string
	Limits subscription.Limits
	Usage  subscription.Usage
}

// LimitsFor returns the stored limits for tier, falling back to the
// built-in defaults when no row exists.
func (s *Service) LimitsFor(ctx context.Context, tier string) subscription.Limits {
	limits, err := s.store.GetLimits(ctx, tier)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithContext(ctx).WithError(err).WithField("tier", tier).Warn("limits lookup failed; using defaults")
		}
		return subscription.DefaultLimits(tier)
	}
	return limits
}

// Overview reports a reader's subscription state for the current month.
func (s *Service) Overview(ctx context.Context, userID string) (Overview, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	usage, err := s.UsageFor(ctx, userID, subscription.MonthKey(time.Now()))
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Tier:   p.Tier,
		Limits: s.LimitsFor(ctx, p.Tier),
		Usage:  usage,
	}, nil
}

// ChangeTier switches a reader to tier. Payment is out of scope; the
// change applies immediately.
func (s *Service) ChangeTier(ctx context.Context, userID, tier string) (profile.Profile, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if !subscription.ValidTier(tier) {
		return profile.Profile{}, apperrors.InvalidInput(fmt.Sprintf("unknown tier %q", tier))
	}

	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	if p.Tier == tier {
		return p, nil
	}

	from := p.Tier
	p.Tier = tier
	updated, err := s.profiles.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, err
	}
	s.log.WithContext(ctx).
		WithField("user_id", userID).
		WithField("from", from).
		WithField("to", tier).
		Info("subscription tier changed")
	return updated, nil
}

// CheckAssessmentQuota reports whether the reader may start another
// assessment this month.
func (s *Service) CheckAssessmentQuota(ctx context.Context, userID, tier string) error {
	limits := s.LimitsFor(ctx, tier)
	if limits.AssessmentsPerMonth == subscription.Unlimited {
		return nil
	}

	usage, err := s.UsageFor(ctx, userID, subscription.MonthKey(time.Now()))
	if err != nil {
		return err
	}
	if !subscription.Allows(limits.AssessmentsPerMonth, usage.AssessmentsTaken) {
		return apperrors.QuotaExceeded("monthly assessment limit reached").
			WithDetails("limit", limits.AssessmentsPerMonth).
			WithDetails("used", usage.AssessmentsTaken)
	}
	return nil
}

// CheckSubmissionQuota reports whether the reader may log another
// reading on day. The count comes from stored submissions, not the
// monthly counters, so deleted submissions free the slot again.
func (s *Service) CheckSubmissionQuota(ctx context.Context, userID, tier string, day time.Time) error {
	limits := s.LimitsFor(ctx, tier)
	if limits.SubmissionsPerDay == subscription.Unlimited {
		return nil
	}

	used, err := s.readings.CountSubmissionsOnDay(ctx, userID, day)
	if err != nil {
		return err
	}
	if !subscription.Allows(limits.SubmissionsPerDay, used) {
		return apperrors.QuotaExceeded("daily submission limit reached").
			WithDetails("limit", limits.SubmissionsPerDay).
			WithDetails("used", used)
	}
	return nil
}

// ConsumeAssessment counts one completed assessment against the reader's
// monthly quota.
func (s *Service) ConsumeAssessment(ctx context.Context, userID string) error {
	_, err := s.store.IncrementUsage(ctx, userID, subscription.MonthKey(time.Now()), 1, 0, 0)
	return err
}

// RecordReading counts one reading submission and its pages.
func (s *Service) RecordReading(ctx context.Context, userID string, pages int) error {
	_, err := s.store.IncrementUsage(ctx, userID, subscription.MonthKey(time.Now()), 0, 1, pages)
	return err
}

// UsageFor returns the reader's usage for month, zeroed when no row
// exists yet.
func (s *Service) UsageFor(ctx context.Context, userID, month string) (subscription.Usage, error) {
	usage, err := s.store.GetUsage(ctx, userID, month)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return subscription.Usage{UserID: userID, Month: month}, nil
		}
		return subscription.Usage{}, err
	}
	return usage, nil
}

// SetLimits stores an admin-edited limits row.
func (s *Service) SetLimits(ctx context.Context, limits subscription.Limits) (subscription.Limits, error) {
	limits.Tier = strings.ToLower(strings.TrimSpace(limits.Tier))
	if !subscription.ValidTier(limits.Tier) {
		return subscription.Limits{}, apperrors.InvalidInput(fmt.Sprintf("unknown tier %q", limits.Tier))
	}
	if limits.AssessmentsPerMonth < subscription.Unlimited {
		return subscription.Limits{}, apperrors.InvalidInput("assessments_per_month must be -1 or non-negative")
	}
	if limits.SubmissionsPerDay < subscription.Unlimited {
		return subscription.Limits{}, apperrors.InvalidInput("submissions_per_day must be -1 or non-negative")
	}

	saved, err := s.store.SetLimits(ctx, limits)
	if err != nil {
		return subscription.Limits{}, err
	}
	s.log.WithContext(ctx).WithField("tier", saved.Tier).Info("tier limits updated")
	return saved, nil
}

// ListLimits returns the limits for every known tier, filling in
// defaults for tiers without a stored row.
func (s *Service) ListLimits(ctx context.Context) ([]subscription.Limits, error) {
	stored, err := s.store.ListLimits(ctx)
	if err != nil {
		return nil, err
	}
	byTier := make(map[string]subscription.Limits, len(stored))
	for _, l := range stored {
		byTier[l.Tier] = l
	}

	tiers := []string{subscription.TierFree, subscription.TierReader, subscription.TierPro}
	result := make([]subscription.Limits, 0, len(tiers))
	for _, tier := range tiers {
		if l, ok := byTier[tier]; ok {
			result = append(result, l)
			continue
		}
		result = append(result, subscription.DefaultLimits(tier))
	}
	return result, nil
}

// ListUsage returns every reader's usage row for month.
func (s *Service) ListUsage(ctx context.Context, month string) ([]subscription.Usage, error) {
	return s.store.ListUsageByMonth(ctx, month)
}

// PruneUsage deletes usage rows older than keepMonths months and returns
// the number removed.
func (s *Service) PruneUsage(ctx context.Context, keepMonths int) (int, error) {
	if keepMonths < 1 {
		keepMonths = 1
	}
	now := time.Now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -keepMonths, 0)

	deleted, err := s.store.DeleteUsageBefore(ctx, subscription.MonthKey(cutoff))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("pruned stale usage rows")
	}
	return deleted, nil
}
