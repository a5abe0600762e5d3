// Package readings manages daily reading submissions and the statistics
// derived from them.
package readings

import (
	"context"
	"errors"
	"time"

	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/services/leaderboard"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/storage"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
)

// Service manages reading submissions.
type Service struct {
	readings storage.ReadingStore
	books    storage.BookStore
	subs     *subscriptions.Service
	board    *leaderboard.Service
	log      *logging.Logger
}

// New constructs a readings service.
func New(readings storage.ReadingStore, books storage.BookStore, subs *subscriptions.Service, board *leaderboard.Service, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("readings")
	}
	return &Service{
		readings: readings,
		books:    books,
		subs:     subs,
		board:    board,
		log:      log,
	}
}

// SubmitInput is the payload for logging a reading session. A zero
// ReadOn means today.
type SubmitInput struct {
	BookID string
	Pages  int
	ReadOn time.Time
}

// Submit logs pages read from a book on a calendar day. One submission
// exists per (user, book, day); repeats conflict. The daily quota for
// the reader's tier is enforced before writing.
func (s *Service) Submit(ctx context.Context, user profile.Profile, in SubmitInput) (reading.Submission, error) {
	if in.BookID == "" {
		return reading.Submission{}, apperrors.InvalidInput("book_id is required")
	}
	if in.Pages < 1 || in.Pages > 5000 {
		return reading.Submission{}, apperrors.InvalidFormat("pages", "must be between 1 and 5000")
	}

	now := time.Now()
	day := reading.Day(in.ReadOn)
	if in.ReadOn.IsZero() {
		day = reading.Day(now)
	}
	if day.After(reading.Day(now)) {
		return reading.Submission{}, apperrors.InvalidFormat("read_on", "must not be in the future")
	}

	if _, err := s.books.GetBook(ctx, in.BookID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return reading.Submission{}, apperrors.NotFound("book")
		}
		return reading.Submission{}, err
	}

	if err := s.subs.CheckSubmissionQuota(ctx, user.ID, user.Tier, day); err != nil {
		return reading.Submission{}, err
	}

	created, err := s.readings.CreateSubmission(ctx, reading.Submission{
		UserID:    user.ID,
		BookID:    in.BookID,
		PagesRead: in.Pages,
		ReadOn:    day,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return reading.Submission{}, apperrors.Conflict("already logged for this book on this day")
		}
		return reading.Submission{}, err
	}

	// Counter and cache updates ride behind the submission; losing one
	// must not fail the request.
	if err := s.subs.RecordReading(ctx, user.ID, in.Pages); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("usage counter update failed")
	}
	if err := s.board.RecordPages(ctx, user.ID, in.Pages); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("leaderboard update failed")
	}

	s.log.WithContext(ctx).
		WithField("user_id", user.ID).
		WithField("book_id", in.BookID).
		WithField("pages", in.Pages).
		Info("reading submitted")
	return created, nil
}

// ListByUser returns the reader's submissions, newest first, optionally
// bounded by [from, to].
func (s *Service) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]reading.Submission, error) {
	return s.readings.ListSubmissionsByUser(ctx, userID, from, to)
}

// Delete removes a submission. Only its owner or an admin may delete.
// The monthly page counters are left untouched; the per-day quota frees
// up on its own since it counts stored rows.
func (s *Service) Delete(ctx context.Context, caller profile.Profile, id string) error {
	sub, err := s.readings.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if sub.UserID != caller.ID && !caller.IsAdmin() {
		return apperrors.Forbidden("not your submission")
	}
	return s.readings.DeleteSubmission(ctx, id)
}

// Summary is a reader's aggregate history plus goal progress for today.
type Summary struct {
	reading.Stats
	PagesToday   int
	ReadingGoal  int
	GoalProgress float64
}

// Stats computes the reader's submission statistics.
func (s *Service) Stats(ctx context.Context, user profile.Profile) (Summary, error) {
	subs, err := s.readings.ListSubmissionsByUser(ctx, user.ID, time.Time{}, time.Time{})
	if err != nil {
		return Summary{}, err
	}

	now := time.Now()
	today := reading.Day(now)
	weekStart := reading.WeekStart(now)
	monthStart := reading.MonthStart(now)

	var stats reading.Stats
	books := make(map[string]bool)
	days := make([]time.Time, 0, len(subs))
	pagesToday := 0
	for _, sub := range subs {
		stats.TotalPages += sub.PagesRead
		stats.TotalSubmissions++
		books[sub.BookID] = true
		days = append(days, sub.ReadOn)

		day := reading.Day(sub.ReadOn)
		if !day.Before(weekStart) {
			stats.PagesThisWeek += sub.PagesRead
		}
		if !day.Before(monthStart) {
			stats.PagesThisMonth += sub.PagesRead
		}
		if day.Equal(today) {
			pagesToday += sub.PagesRead
		}
	}
	stats.BooksRead = len(books)
	stats.CurrentStreak, stats.LongestStreak = reading.Streaks(days, now)

	summary := Summary{
		Stats:       stats,
		PagesToday:  pagesToday,
		ReadingGoal: user.ReadingGoal,
	}
	if user.ReadingGoal > 0 {
		summary.GoalProgress = float64(pagesToday) / float64(user.ReadingGoal)
	}
	return summary, nil
}
