// Package maintenance runs the periodic housekeeping jobs: leaderboard
// cache rebuilds, expired-session purges and usage-row retention.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/readspeed/backend/internal/app/services/leaderboard"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/logging"
)

// jobTimeout bounds a single job run.
const jobTimeout = 5 * time.Minute

// Config holds the cron expressions and retention policy.
type Config struct {
	LeaderboardRefresh   string
	SessionPurge         string
	UsagePrune           string
	UsageRetentionMonths int
}

// Service schedules housekeeping jobs. It implements system.Service so
// the application manager controls its lifecycle.
type Service struct {
	cfg      Config
	board    *leaderboard.Service
	subs     *subscriptions.Service
	sessions storage.SessionStore
	cron     *cron.Cron
	log      *logging.Logger
}

// New constructs the maintenance service. Empty cron expressions disable
// the corresponding job.
func New(cfg Config, board *leaderboard.Service, subs *subscriptions.Service, sessions storage.SessionStore, log *logging.Logger) *Service {
	if cfg.UsageRetentionMonths < 1 {
		cfg.UsageRetentionMonths = 12
	}
	if log == nil {
		log = logging.NewDefault("maintenance")
	}
	return &Service{
		cfg:      cfg,
		board:    board,
		subs:     subs,
		sessions: sessions,
		log:      log,
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "maintenance" }

// Start registers and starts the scheduled jobs. Jobs log failures and
// never abort the process.
func (s *Service) Start(context.Context) error {
	s.cron = cron.New()

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"leaderboard_refresh", s.cfg.LeaderboardRefresh, s.refreshLeaderboard},
		{"session_purge", s.cfg.SessionPurge, s.purgeSessions},
		{"usage_prune", s.cfg.UsagePrune, s.pruneUsage},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(job.name, job.run) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
		s.log.WithField("job", job.name).WithField("spec", job.spec).Info("job scheduled")
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runJob(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	log := s.log.WithField("job", name)
	log.Info("job started")
	if err := run(ctx); err != nil {
		log.WithError(err).Error("job failed")
		return
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("job finished")
}

func (s *Service) refreshLeaderboard(ctx context.Context) error {
	if !s.board.CacheEnabled() {
		return nil
	}
	return s.board.Rebuild(ctx)
}

func (s *Service) purgeSessions(ctx context.Context) error {
	deleted, err := s.sessions.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("expired sessions purged")
	}
	return nil
}

func (s *Service) pruneUsage(ctx context.Context) error {
	_, err := s.subs.PruneUsage(ctx, s.cfg.UsageRetentionMonths)
	return err
}
