// Package storage defines the persistence interfaces implemented by the
// memory, postgres and supabase drivers.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/flag"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/domain/subscription"
)

// Sentinel errors returned by every driver. Drivers wrap them with
// entity detail; callers test with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// UserTotal pairs a user with an aggregated metric, used for
// leaderboard computation.
type UserTotal struct {
	UserID string
	Value  float64
}

// ProfileStore persists reader profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (profile.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (profile.Profile, error)
	ListProfiles(ctx context.Context, offset, limit int) ([]profile.Profile, error)
	CountProfiles(ctx context.Context) (int, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s profile.Session) (profile.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (profile.Session, error)
	TouchSession(ctx context.Context, id string, seenAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUser(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// BookStore persists catalog entries. ListBooks also returns the total
// match count for pagination.
type BookStore interface {
	CreateBook(ctx context.Context, b book.Book) (book.Book, error)
	UpdateBook(ctx context.Context, b book.Book) (book.Book, error)
	GetBook(ctx context.Context, id string) (book.Book, error)
	ListBooks(ctx context.Context, filter book.Filter) ([]book.Book, int, error)
	DeleteBook(ctx context.Context, id string) error
}

// ReadingStore persists reading submissions. A zero from/to leaves that
// bound open.
type ReadingStore interface {
	CreateSubmission(ctx context.Context, sub reading.Submission) (reading.Submission, error)
	GetSubmission(ctx context.Context, id string) (reading.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
	ListSubmissionsByUser(ctx context.Context, userID string, from, to time.Time) ([]reading.Submission, error)
	CountSubmissionsOnDay(ctx context.Context, userID string, day time.Time) (int, error)
	SumPagesByUser(ctx context.Context, since time.Time) ([]UserTotal, error)
}

// AssessmentStore persists texts, sessions and results.
type AssessmentStore interface {
	CreateText(ctx context.Context, t assessment.Text) (assessment.Text, error)
	UpdateText(ctx context.Context, t assessment.Text) (assessment.Text, error)
	GetText(ctx context.Context, id string) (assessment.Text, error)
	ListTexts(ctx context.Context, onlyActive bool) ([]assessment.Text, error)
	DeleteText(ctx context.Context, id string) error

	CreateAssessmentSession(ctx context.Context, s assessment.Session) (assessment.Session, error)
	GetAssessmentSession(ctx context.Context, id string) (assessment.Session, error)
	CompleteAssessmentSession(ctx context.Context, id string) error

	CreateResult(ctx context.Context, r assessment.Result) (assessment.Result, error)
	GetResult(ctx context.Context, id string) (assessment.Result, error)
	ListResultsByUser(ctx context.Context, userID string, offset, limit int) ([]assessment.Result, error)
	BestWPMByUser(ctx context.Context, since time.Time) ([]UserTotal, error)
}

// SubscriptionStore persists tier policy and monthly usage counters.
// IncrementUsage atomically adds the deltas to the (user, month) row,
// creating it when absent.
type SubscriptionStore interface {
	GetLimits(ctx context.Context, tier string) (subscription.Limits, error)
	SetLimits(ctx context.Context, limits subscription.Limits) (subscription.Limits, error)
	ListLimits(ctx context.Context) ([]subscription.Limits, error)

	GetUsage(ctx context.Context, userID, month string) (subscription.Usage, error)
	IncrementUsage(ctx context.Context, userID, month string, assessments, submissions, pages int) (subscription.Usage, error)
	ListUsageByMonth(ctx context.Context, month string) ([]subscription.Usage, error)
	DeleteUsageBefore(ctx context.Context, month string) (int, error)
}

// FlagStore persists feature flags.
type FlagStore interface {
	UpsertFlag(ctx context.Context, f flag.Flag) (flag.Flag, error)
	GetFlag(ctx context.Context, key string) (flag.Flag, error)
	ListFlags(ctx context.Context) ([]flag.Flag, error)
	DeleteFlag(ctx context.Context, key string) error
}

// Pinger is implemented by drivers that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
