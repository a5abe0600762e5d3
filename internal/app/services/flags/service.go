// Package flags evaluates feature flags against a reader's tier and
// role.
package flags

import (
	"context"
	"regexp"
	"strings"

	"github.com/readspeed/backend/internal/app/domain/flag"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/storage"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_.-]{2,64}$`)

// Service manages and evaluates feature flags.
type Service struct {
	store storage.FlagStore
	log   *logging.Logger
}

// New constructs a flag service.
func New(store storage.FlagStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("flags")
	}
	return &Service{store: store, log: log}
}

// Evaluation is one flag resolved for a specific reader.
type Evaluation struct {
	Key         string
	Description string
	Enabled     bool
}

// Evaluate resolves every flag for the caller. A flag is on when it is
// enabled, the caller's tier is at or above MinTier, and AdminOnly
// admits the caller.
func (s *Service) Evaluate(ctx context.Context, caller profile.Profile) ([]Evaluation, error) {
	all, err := s.store.ListFlags(ctx)
	if err != nil {
		return nil, err
	}

	evals := make([]Evaluation, 0, len(all))
	for _, f := range all {
		evals = append(evals, Evaluation{
			Key:         f.Key,
			Description: f.Description,
			Enabled:     enabledFor(f, caller),
		})
	}
	return evals, nil
}

// IsEnabled resolves a single flag for the caller. Unknown flags are
// off.
func (s *Service) IsEnabled(ctx context.Context, key string, caller profile.Profile) bool {
	f, err := s.store.GetFlag(ctx, key)
	if err != nil {
		return false
	}
	return enabledFor(f, caller)
}

func enabledFor(f flag.Flag, caller profile.Profile) bool {
	if !f.Enabled {
		return false
	}
	if f.AdminOnly && !caller.IsAdmin() {
		return false
	}
	if f.MinTier != "" && !caller.IsAdmin() {
		if subscription.TierRank(caller.Tier) < subscription.TierRank(f.MinTier) {
			return false
		}
	}
	return true
}

// SetInput is the payload for an admin flag upsert.
type SetInput struct {
	Description string
	Enabled     bool
	MinTier     string
	AdminOnly   bool
}

// Set creates or replaces a flag.
func (s *Service) Set(ctx context.Context, key string, in SetInput) (flag.Flag, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if !keyPattern.MatchString(key) {
		return flag.Flag{}, apperrors.InvalidFormat("key", "2-64 lower-case letters, digits, dots, dashes or underscores")
	}
	minTier := strings.ToLower(strings.TrimSpace(in.MinTier))
	if minTier != "" && !subscription.ValidTier(minTier) {
		return flag.Flag{}, apperrors.InvalidFormat("min_tier", "must be free, reader or pro")
	}

	saved, err := s.store.UpsertFlag(ctx, flag.Flag{
		Key:         key,
		Description: strings.TrimSpace(in.Description),
		Enabled:     in.Enabled,
		MinTier:     minTier,
		AdminOnly:   in.AdminOnly,
	})
	if err != nil {
		return flag.Flag{}, err
	}
	s.log.WithContext(ctx).
		WithField("key", saved.Key).
		WithField("enabled", saved.Enabled).
		Info("feature flag set")
	return saved, nil
}

// Get returns a flag row with its gating fields. Admin surface only.
func (s *Service) Get(ctx context.Context, key string) (flag.Flag, error) {
	return s.store.GetFlag(ctx, strings.ToLower(strings.TrimSpace(key)))
}

// All returns every flag row. Admin surface only.
func (s *Service) All(ctx context.Context) ([]flag.Flag, error) {
	return s.store.ListFlags(ctx)
}

// Delete removes a flag. Readers then see it as off.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.store.DeleteFlag(ctx, strings.ToLower(strings.TrimSpace(key))); err != nil {
		return err
	}
	s.log.WithContext(ctx).WithField("key", key).Info("feature flag deleted")
	return nil
}
