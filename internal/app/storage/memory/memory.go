package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/flag"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is
// safe for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu                 sync.RWMutex
	nextID             int64
	profiles           map[string]profile.Profile
	profilesByEmail    map[string]string
	profilesByUsername map[string]string
	sessions           map[string]profile.Session
	sessionsByHash     map[string]string
	books              map[string]book.Book
	submissions        map[string]reading.Submission
	submissionKeys     map[string]string
	texts              map[string]assessment.Text
	attempts           map[string]assessment.Session
	results            map[string]assessment.Result
	limits             map[string]subscription.Limits
	usage              map[string]subscription.Usage
	flags              map[string]flag.Flag
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.BookStore = (*Store)(nil)
var _ storage.ReadingStore = (*Store)(nil)
var _ storage.AssessmentStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.FlagStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:             1,
		profiles:           make(map[string]profile.Profile),
		profilesByEmail:    make(map[string]string),
		profilesByUsername: make(map[string]string),
		sessions:           make(map[string]profile.Session),
		sessionsByHash:     make(map[string]string),
		books:              make(map[string]book.Book),
		submissions:        make(map[string]reading.Submission),
		submissionKeys:     make(map[string]string),
		texts:              make(map[string]assessment.Text),
		attempts:           make(map[string]assessment.Session),
		results:            make(map[string]assessment.Result),
		limits:             make(map[string]subscription.Limits),
		usage:              make(map[string]subscription.Usage),
		flags:              make(map[string]flag.Flag),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

func submissionKey(userID, bookID string, day time.Time) string {
	return userID + "|" + bookID + "|" + reading.Day(day).Format("2006-01-02")
}

func usageKey(userID, month string) string {
	return userID + "|" + month
}

// ProfileStore implementation --------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(p.Email)
	username := strings.ToLower(p.Username)
	if _, exists := s.profilesByEmail[email]; exists {
		return profile.Profile{}, fmt.Errorf("profile email %s: %w", p.Email, storage.ErrConflict)
	}
	if _, exists := s.profilesByUsername[username]; exists {
		return profile.Profile{}, fmt.Errorf("profile username %s: %w", p.Username, storage.ErrConflict)
	}

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.profiles[p.ID]; exists {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", p.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.PreferredGenres = append([]string(nil), p.PreferredGenres...)

	s.profiles[p.ID] = p
	s.profilesByEmail[email] = p.ID
	s.profilesByUsername[username] = p.ID
	return cloneProfile(p), nil
}

func (s *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profiles[p.ID]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", p.ID, storage.ErrNotFound)
	}

	email := strings.ToLower(p.Email)
	username := strings.ToLower(p.Username)
	if owner, exists := s.profilesByEmail[email]; exists && owner != p.ID {
		return profile.Profile{}, fmt.Errorf("profile email %s: %w", p.Email, storage.ErrConflict)
	}
	if owner, exists := s.profilesByUsername[username]; exists && owner != p.ID {
		return profile.Profile{}, fmt.Errorf("profile username %s: %w", p.Username, storage.ErrConflict)
	}

	delete(s.profilesByEmail, strings.ToLower(original.Email))
	delete(s.profilesByUsername, strings.ToLower(original.Username))

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.PreferredGenres = append([]string(nil), p.PreferredGenres...)

	s.profiles[p.ID] = p
	s.profilesByEmail[email] = p.ID
	s.profilesByUsername[username] = p.ID
	return cloneProfile(p), nil
}

func (s *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	return cloneProfile(p), nil
}

func (s *Store) GetProfileByEmail(_ context.Context, email string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.profilesByEmail[strings.ToLower(email)]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile email %s: %w", email, storage.ErrNotFound)
	}
	return cloneProfile(s.profiles[id]), nil
}

func (s *Store) GetProfileByUsername(_ context.Context, username string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.profilesByUsername[strings.ToLower(username)]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile username %s: %w", username, storage.ErrNotFound)
	}
	return cloneProfile(s.profiles[id]), nil
}

func (s *Store) ListProfiles(_ context.Context, offset, limit int) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	return clonePage(all, offset, limit, cloneProfile), nil
}

func (s *Store) CountProfiles(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}

// SessionStore implementation --------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess profile.Session) (profile.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = s.nextIDLocked()
	}
	if _, exists := s.sessionsByHash[sess.TokenHash]; exists {
		return profile.Session{}, fmt.Errorf("session token: %w", storage.ErrConflict)
	}

	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.LastSeenAt = now

	s.sessions[sess.ID] = sess
	s.sessionsByHash[sess.TokenHash] = sess.ID
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, tokenHash string) (profile.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessionsByHash[tokenHash]
	if !ok {
		return profile.Session{}, fmt.Errorf("session: %w", storage.ErrNotFound)
	}
	return s.sessions[id], nil
}

func (s *Store) TouchSession(_ context.Context, id string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	sess.LastSeenAt = seenAt.UTC()
	s.sessions[id] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	delete(s.sessionsByHash, sess.TokenHash)
	delete(s.sessions, id)
	return nil
}

func (s *Store) DeleteSessionsByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessionsByHash, sess.TokenHash)
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessionsByHash, sess.TokenHash)
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// BookStore implementation -----------------------------------------------------

func (s *Store) CreateBook(_ context.Context, b book.Book) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = s.nextIDLocked()
	} else if _, exists := s.books[b.ID]; exists {
		return book.Book{}, fmt.Errorf("book %s: %w", b.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	s.books[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBook(_ context.Context, b book.Book) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.books[b.ID]
	if !ok {
		return book.Book{}, fmt.Errorf("book %s: %w", b.ID, storage.ErrNotFound)
	}

	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.books[b.ID] = b
	return b, nil
}

func (s *Store) GetBook(_ context.Context, id string) (book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[id]
	if !ok {
		return book.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBooks(_ context.Context, filter book.Filter) ([]book.Book, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter = filter.Normalize()
	genre := strings.ToLower(filter.Genre)
	search := strings.ToLower(filter.Search)

	matched := make([]book.Book, 0, len(s.books))
	for _, b := range s.books {
		if genre != "" && strings.ToLower(b.Genre) != genre {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page := clonePage(matched, filter.Offset(), filter.PerPage, func(b book.Book) book.Book { return b })
	return page, total, nil
}

func (s *Store) DeleteBook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[id]; !ok {
		return fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	delete(s.books, id)
	return nil
}

// ReadingStore implementation --------------------------------------------------

func (s *Store) CreateSubmission(_ context.Context, sub reading.Submission) (reading.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := submissionKey(sub.UserID, sub.BookID, sub.ReadOn)
	if _, exists := s.submissionKeys[key]; exists {
		return reading.Submission{}, fmt.Errorf("submission for book %s on %s: %w",
			sub.BookID, reading.Day(sub.ReadOn).Format("2006-01-02"), storage.ErrConflict)
	}

	if sub.ID == "" {
		sub.ID = s.nextIDLocked()
	}
	sub.ReadOn = reading.Day(sub.ReadOn)
	sub.CreatedAt = time.Now().UTC()

	s.submissions[sub.ID] = sub
	s.submissionKeys[key] = sub.ID
	return sub, nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (reading.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return reading.Submission{}, fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	return sub, nil
}

func (s *Store) DeleteSubmission(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	delete(s.submissionKeys, submissionKey(sub.UserID, sub.BookID, sub.ReadOn))
	delete(s.submissions, id)
	return nil
}

func (s *Store) ListSubmissionsByUser(_ context.Context, userID string, from, to time.Time) ([]reading.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]reading.Submission, 0)
	for _, sub := range s.submissions {
		if sub.UserID != userID {
			continue
		}
		if !from.IsZero() && sub.ReadOn.Before(reading.Day(from)) {
			continue
		}
		if !to.IsZero() && sub.ReadOn.After(reading.Day(to)) {
			continue
		}
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ReadOn.Equal(result[j].ReadOn) {
			return result[i].ID < result[j].ID
		}
		return result[i].ReadOn.After(result[j].ReadOn)
	})
	return result, nil
}

func (s *Store) CountSubmissionsOnDay(_ context.Context, userID string, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target := reading.Day(day)
	count := 0
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.ReadOn.Equal(target) {
			count++
		}
	}
	return count, nil
}

func (s *Store) SumPagesByUser(_ context.Context, since time.Time) ([]storage.UserTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]float64)
	for _, sub := range s.submissions {
		if !since.IsZero() && sub.ReadOn.Before(reading.Day(since)) {
			continue
		}
		totals[sub.UserID] += float64(sub.PagesRead)
	}
	return sortedTotals(totals), nil
}

// AssessmentStore implementation -----------------------------------------------

func (s *Store) CreateText(_ context.Context, t assessment.Text) (assessment.Text, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextIDLocked()
	} else if _, exists := s.texts[t.ID]; exists {
		return assessment.Text{}, fmt.Errorf("text %s: %w", t.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Questions = cloneQuestions(t.Questions)

	s.texts[t.ID] = t
	return cloneText(t), nil
}

func (s *Store) UpdateText(_ context.Context, t assessment.Text) (assessment.Text, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.texts[t.ID]
	if !ok {
		return assessment.Text{}, fmt.Errorf("text %s: %w", t.ID, storage.ErrNotFound)
	}

	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	t.Questions = cloneQuestions(t.Questions)

	s.texts[t.ID] = t
	return cloneText(t), nil
}

func (s *Store) GetText(_ context.Context, id string) (assessment.Text, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.texts[id]
	if !ok {
		return assessment.Text{}, fmt.Errorf("text %s: %w", id, storage.ErrNotFound)
	}
	return cloneText(t), nil
}

func (s *Store) ListTexts(_ context.Context, onlyActive bool) ([]assessment.Text, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]assessment.Text, 0, len(s.texts))
	for _, t := range s.texts {
		if onlyActive && !t.Active {
			continue
		}
		result = append(result, cloneText(t))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteText(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.texts[id]; !ok {
		return fmt.Errorf("text %s: %w", id, storage.ErrNotFound)
	}
	delete(s.texts, id)
	return nil
}

func (s *Store) CreateAssessmentSession(_ context.Context, sess assessment.Session) (assessment.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = s.nextIDLocked()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	s.attempts[sess.ID] = sess
	return sess, nil
}

func (s *Store) GetAssessmentSession(_ context.Context, id string) (assessment.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.attempts[id]
	if !ok {
		return assessment.Session{}, fmt.Errorf("assessment session %s: %w", id, storage.ErrNotFound)
	}
	return sess, nil
}

func (s *Store) CompleteAssessmentSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.attempts[id]
	if !ok {
		return fmt.Errorf("assessment session %s: %w", id, storage.ErrNotFound)
	}
	if sess.Completed {
		return fmt.Errorf("assessment session %s: %w", id, storage.ErrConflict)
	}
	sess.Completed = true
	s.attempts[id] = sess
	return nil
}

func (s *Store) CreateResult(_ context.Context, r assessment.Result) (assessment.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.nextIDLocked()
	}
	r.CreatedAt = time.Now().UTC()
	s.results[r.ID] = r
	return r, nil
}

func (s *Store) GetResult(_ context.Context, id string) (assessment.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return assessment.Result{}, fmt.Errorf("result %s: %w", id, storage.ErrNotFound)
	}
	return r, nil
}

func (s *Store) ListResultsByUser(_ context.Context, userID string, offset, limit int) ([]assessment.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]assessment.Result, 0)
	for _, r := range s.results {
		if r.UserID == userID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return clonePage(all, offset, limit, func(r assessment.Result) assessment.Result { return r }), nil
}

func (s *Store) BestWPMByUser(_ context.Context, since time.Time) ([]storage.UserTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := make(map[string]float64)
	for _, r := range s.results {
		if !since.IsZero() && r.CreatedAt.Before(since) {
			continue
		}
		if float64(r.WPM) > best[r.UserID] {
			best[r.UserID] = float64(r.WPM)
		}
	}
	return sortedTotals(best), nil
}

// SubscriptionStore implementation ---------------------------------------------

func (s *Store) GetLimits(_ context.Context, tier string) (subscription.Limits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.limits[tier]
	if !ok {
		return subscription.Limits{}, fmt.Errorf("limits for tier %s: %w", tier, storage.ErrNotFound)
	}
	return l, nil
}

func (s *Store) SetLimits(_ context.Context, limits subscription.Limits) (subscription.Limits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limits.UpdatedAt = time.Now().UTC()
	s.limits[limits.Tier] = limits
	return limits, nil
}

func (s *Store) ListLimits(_ context.Context) ([]subscription.Limits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]subscription.Limits, 0, len(s.limits))
	for _, l := range s.limits {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		return subscription.TierRank(result[i].Tier) < subscription.TierRank(result[j].Tier)
	})
	return result, nil
}

func (s *Store) GetUsage(_ context.Context, userID, month string) (subscription.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usage[usageKey(userID, month)]
	if !ok {
		return subscription.Usage{}, fmt.Errorf("usage %s %s: %w", userID, month, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) IncrementUsage(_ context.Context, userID, month string, assessments, submissions, pages int) (subscription.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(userID, month)
	u, ok := s.usage[key]
	if !ok {
		u = subscription.Usage{UserID: userID, Month: month}
	}
	u.AssessmentsTaken += assessments
	u.SubmissionsCount += submissions
	u.PagesRead += pages
	u.UpdatedAt = time.Now().UTC()
	s.usage[key] = u
	return u, nil
}

func (s *Store) ListUsageByMonth(_ context.Context, month string) ([]subscription.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]subscription.Usage, 0)
	for _, u := range s.usage {
		if u.Month == month {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (s *Store) DeleteUsageBefore(_ context.Context, month string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, u := range s.usage {
		if u.Month < month {
			delete(s.usage, key)
			removed++
		}
	}
	return removed, nil
}

// FlagStore implementation -----------------------------------------------------

func (s *Store) UpsertFlag(_ context.Context, f flag.Flag) (flag.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.UpdatedAt = time.Now().UTC()
	s.flags[f.Key] = f
	return f, nil
}

func (s *Store) GetFlag(_ context.Context, key string) (flag.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flags[key]
	if !ok {
		return flag.Flag{}, fmt.Errorf("flag %s: %w", key, storage.ErrNotFound)
	}
	return f, nil
}

func (s *Store) ListFlags(_ context.Context) ([]flag.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]flag.Flag, 0, len(s.flags))
	for _, f := range s.flags {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *Store) DeleteFlag(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flags[key]; !ok {
		return fmt.Errorf("flag %s: %w", key, storage.ErrNotFound)
	}
	delete(s.flags, key)
	return nil
}

// helpers ----------------------------------------------------------------------

func cloneProfile(p profile.Profile) profile.Profile {
	p.PreferredGenres = append([]string(nil), p.PreferredGenres...)
	return p
}

func cloneQuestions(questions []assessment.Question) []assessment.Question {
	out := make([]assessment.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

func cloneText(t assessment.Text) assessment.Text {
	t.Questions = cloneQuestions(t.Questions)
	return t
}

func clonePage[T any](all []T, offset, limit int, clone func(T) T) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) || limit <= 0 {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]T, 0, end-offset)
	for _, item := range all[offset:end] {
		page = append(page, clone(item))
	}
	return page
}

func sortedTotals(totals map[string]float64) []storage.UserTotal {
	result := make([]storage.UserTotal, 0, len(totals))
	for userID, value := range totals {
		result = append(result, storage.UserTotal{UserID: userID, Value: value})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Value == result[j].Value {
			return result[i].UserID < result[j].UserID
		}
		return result[i].Value > result[j].Value
	})
	return result
}
