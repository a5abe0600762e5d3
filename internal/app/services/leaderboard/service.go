// Package leaderboard ranks readers by reading speed and pages read.
//
// Rankings live in redis sorted sets keyed lb:<board>:<bucket> and are
// updated incrementally as results and submissions arrive. Without redis
// every read aggregates directly from the store, so the cache is purely
// an accelerator and can be rebuilt at any time.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/storage"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
)

// Boards readers can be ranked on.
const (
	BoardWPM   = "wpm"
	BoardPages = "pages"
)

// Ranking periods. Weekly buckets follow ISO weeks, all in UTC.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "alltime"
)

// Rolling buckets expire once they can no longer be current; all-time
// keys are kept forever.
const (
	weeklyTTL  = 35 * 24 * time.Hour
	monthlyTTL = 400 * 24 * time.Hour
)

var (
	boards  = []string{BoardWPM, BoardPages}
	periods = []string{PeriodWeekly, PeriodMonthly, PeriodAllTime}
)

// Entry is one leaderboard row, hydrated with profile display data.
type Entry struct {
	Rank        int
	UserID      string
	Username    string
	DisplayName string
	AvatarURL   string
	Value       float64
}

// Service computes and caches reader rankings.
type Service struct {
	readings    storage.ReadingStore
	assessments storage.AssessmentStore
	profiles    storage.ProfileStore
	rdb         *redis.Client
	log         *logging.Logger
}

// New constructs a leaderboard service. rdb may be nil, in which case
// every read falls back to store aggregation.
func New(readings storage.ReadingStore, assessments storage.AssessmentStore, profiles storage.ProfileStore, rdb *redis.Client, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("leaderboard")
	}
	return &Service{
		readings:    readings,
		assessments: assessments,
		profiles:    profiles,
		rdb:         rdb,
		log:         log,
	}
}

// CacheEnabled reports whether a redis cache is wired in.
func (s *Service) CacheEnabled() bool {
	return s.rdb != nil
}

// Top returns the first limit entries of a board for the current period
// bucket.
func (s *Service) Top(ctx context.Context, board, period string, limit int) ([]Entry, error) {
	if err := validate(board, period); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	if s.rdb != nil {
		entries, err := s.topFromCache(ctx, board, period, limit)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("leaderboard cache read failed; using store")
		} else if len(entries) > 0 {
			return entries, nil
		}
	}

	totals, err := s.totalsFromStore(ctx, board, period)
	if err != nil {
		return nil, err
	}
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return s.hydrate(ctx, totals), nil
}

// Rank returns the caller's own row, or nil when unranked.
func (s *Service) Rank(ctx context.Context, board, period, userID string) (*Entry, error) {
	if err := validate(board, period); err != nil {
		return nil, err
	}

	if s.rdb != nil {
		entry, err := s.rankFromCache(ctx, board, period, userID)
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, redis.Nil):
			// Cold or missing member; the store settles it below.
		default:
			s.log.WithContext(ctx).WithError(err).Warn("leaderboard cache rank failed; using store")
		}
	}

	totals, err := s.totalsFromStore(ctx, board, period)
	if err != nil {
		return nil, err
	}
	for i, t := range totals {
		if t.UserID == userID {
			return s.entryFor(ctx, userID, i+1, t.Value)
		}
	}
	return nil, nil
}

// RecordAssessment folds a fresh assessment result into the cache.
// A no-op without redis; store aggregation is always current.
func (s *Service) RecordAssessment(ctx context.Context, userID string, wpm int) error {
	if s.rdb == nil {
		return nil
	}
	now := time.Now()
	pipe := s.rdb.TxPipeline()
	for _, period := range periods {
		key := cacheKey(BoardWPM, period, now)
		pipe.ZAddArgs(ctx, key, redis.ZAddArgs{
			GT:      true,
			Members: []redis.Z{{Score: float64(wpm), Member: userID}},
		})
		if ttl := bucketTTL(period); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RecordPages folds a fresh reading submission into the cache.
func (s *Service) RecordPages(ctx context.Context, userID string, pages int) error {
	if s.rdb == nil {
		return nil
	}
	now := time.Now()
	pipe := s.rdb.TxPipeline()
	for _, period := range periods {
		key := cacheKey(BoardPages, period, now)
		pipe.ZIncrBy(ctx, key, float64(pages), userID)
		if ttl := bucketTTL(period); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Rebuild recomputes every board from the store into redis. Safe to run
// at any time; readers see either the old or the new set.
func (s *Service) Rebuild(ctx context.Context) error {
	if s.rdb == nil {
		s.log.Info("leaderboard cache disabled; nothing to rebuild")
		return nil
	}

	now := time.Now()
	for _, board := range boards {
		for _, period := range periods {
			totals, err := s.totalsFromStore(ctx, board, period)
			if err != nil {
				return fmt.Errorf("aggregate %s/%s: %w", board, period, err)
			}

			key := cacheKey(board, period, now)
			pipe := s.rdb.TxPipeline()
			pipe.Del(ctx, key)
			if len(totals) > 0 {
				members := make([]*redis.Z, 0, len(totals))
				for _, t := range totals {
					members = append(members, &redis.Z{Score: t.Value, Member: t.UserID})
				}
				pipe.ZAdd(ctx, key, members...)
			}
			if ttl := bucketTTL(period); ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("rebuild %s: %w", key, err)
			}
		}
	}
	s.log.Info("leaderboard cache rebuilt")
	return nil
}

func (s *Service) topFromCache(ctx context.Context, board, period string, limit int) ([]Entry, error) {
	key := cacheKey(board, period, time.Now())
	rows, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	totals := make([]storage.UserTotal, 0, len(rows))
	for _, z := range rows {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		totals = append(totals, storage.UserTotal{UserID: id, Value: z.Score})
	}
	return s.hydrate(ctx, totals), nil
}

func (s *Service) rankFromCache(ctx context.Context, board, period, userID string) (*Entry, error) {
	key := cacheKey(board, period, time.Now())
	rank, err := s.rdb.ZRevRank(ctx, key, userID).Result()
	if err != nil {
		return nil, err
	}
	score, err := s.rdb.ZScore(ctx, key, userID).Result()
	if err != nil {
		return nil, err
	}
	return s.entryFor(ctx, userID, int(rank)+1, score)
}

func (s *Service) totalsFromStore(ctx context.Context, board, period string) ([]storage.UserTotal, error) {
	since := periodStart(period, time.Now())
	if board == BoardWPM {
		return s.assessments.BestWPMByUser(ctx, since)
	}
	return s.readings.SumPagesByUser(ctx, since)
}

// hydrate attaches profile display data. Rows whose profile is gone are
// dropped but keep their neighbours' ranks intact.
func (s *Service) hydrate(ctx context.Context, totals []storage.UserTotal) []Entry {
	entries := make([]Entry, 0, len(totals))
	for i, t := range totals {
		p, err := s.profiles.GetProfile(ctx, t.UserID)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Rank:        i + 1,
			UserID:      t.UserID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Value:       t.Value,
		})
	}
	return entries
}

func (s *Service) entryFor(ctx context.Context, userID string, rank int, value float64) (*Entry, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Entry{
		Rank:        rank,
		UserID:      userID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Value:       value,
	}, nil
}

func validate(board, period string) error {
	switch board {
	case BoardWPM, BoardPages:
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown board %q", board))
	}
	switch period {
	case PeriodWeekly, PeriodMonthly, PeriodAllTime:
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown period %q", period))
	}
	return nil
}

// bucketKey names the period bucket containing t.
func bucketKey(period string, t time.Time) string {
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

func cacheKey(board, period string, t time.Time) string {
	return fmt.Sprintf("lb:%s:%s", board, bucketKey(period, t))
}

// periodStart returns the inclusive lower bound of the bucket containing
// t; zero for all time.
func periodStart(period string, t time.Time) time.Time {
	switch period {
	case PeriodWeekly:
		return reading.WeekStart(t)
	case PeriodMonthly:
		return reading.MonthStart(t)
	default:
		return time.Time{}
	}
}

func bucketTTL(period string) time.Duration {
	switch period {
	case PeriodWeekly:
		return weeklyTTL
	case PeriodMonthly:
		return monthlyTTL
	}
	return 0
}
