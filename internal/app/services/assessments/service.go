// Package assessments manages timed comprehension assessments: the text
// library, session lifecycle and scored results.
package assessments

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/services/leaderboard"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/storage"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/metrics"
)

// Submission duration bounds.
const (
	minDuration = time.Second
	maxDuration = 30 * time.Minute
)

// Service manages assessment texts, sessions and results.
type Service struct {
	store  storage.AssessmentStore
	subs   *subscriptions.Service
	board  *leaderboard.Service
	scorer Scorer
	mx     *metrics.Metrics
	log    *logging.Logger
}

// New constructs an assessment service. A nil scorer selects the local
// formula; mx may be nil.
func New(store storage.AssessmentStore, subs *subscriptions.Service, board *leaderboard.Service, scorer Scorer, mx *metrics.Metrics, log *logging.Logger) *Service {
	if scorer == nil {
		scorer = MockScorer{}
	}
	if log == nil {
		log = logging.NewDefault("assessments")
	}
	return &Service{
		store:  store,
		subs:   subs,
		board:  board,
		scorer: scorer,
		mx:     mx,
		log:    log,
	}
}

// ListTexts returns texts, optionally restricted to one difficulty.
// Handlers strip answers before serving non-admin callers.
func (s *Service) ListTexts(ctx context.Context, difficulty string, onlyActive bool) ([]assessment.Text, error) {
	if difficulty != "" && !assessment.ValidDifficulty(difficulty) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown difficulty %q", difficulty))
	}

	texts, err := s.store.ListTexts(ctx, onlyActive)
	if err != nil {
		return nil, err
	}
	if difficulty == "" {
		return texts, nil
	}
	filtered := texts[:0]
	for _, t := range texts {
		if t.Difficulty == difficulty {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// StartOutcome is a fresh session paired with its text.
type StartOutcome struct {
	Session assessment.Session
	Text    assessment.Text
}

// Start opens an assessment session on the requested text, or a random
// active one when no text is named. The monthly quota is checked here
// and consumed on submit.
func (s *Service) Start(ctx context.Context, user profile.Profile, textID string) (StartOutcome, error) {
	if err := s.subs.CheckAssessmentQuota(ctx, user.ID, user.Tier); err != nil {
		return StartOutcome{}, err
	}

	var text assessment.Text
	if textID != "" {
		t, err := s.store.GetText(ctx, textID)
		if err != nil {
			return StartOutcome{}, err
		}
		if !t.Active {
			return StartOutcome{}, apperrors.NotFound("assessment text")
		}
		text = t
	} else {
		active, err := s.store.ListTexts(ctx, true)
		if err != nil {
			return StartOutcome{}, err
		}
		if len(active) == 0 {
			return StartOutcome{}, apperrors.New(apperrors.CodeNotFound, "no active assessment texts", http.StatusNotFound)
		}
		text = active[rand.Intn(len(active))]
	}

	session, err := s.store.CreateAssessmentSession(ctx, assessment.Session{
		UserID:    user.ID,
		TextID:    text.ID,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return StartOutcome{}, err
	}

	s.log.WithContext(ctx).
		WithField("session_id", session.ID).
		WithField("text_id", text.ID).
		Info("assessment started")
	return StartOutcome{Session: session, Text: text}, nil
}

// SubmitOutcome is a persisted result with the scorer's verdict.
type SubmitOutcome struct {
	Result assessment.Result
	Rating string
	Model  string
}

// Submit grades a session's answers, scores the attempt and persists the
// result. A session can be submitted exactly once.
func (s *Service) Submit(ctx context.Context, user profile.Profile, sessionID string, answers []int, durationMS int64) (SubmitOutcome, error) {
	session, err := s.store.GetAssessmentSession(ctx, sessionID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if session.UserID != user.ID {
		return SubmitOutcome{}, apperrors.Forbidden("not your assessment session")
	}
	if session.Completed {
		return SubmitOutcome{}, apperrors.Conflict("assessment already submitted")
	}

	if err := s.subs.CheckAssessmentQuota(ctx, user.ID, user.Tier); err != nil {
		return SubmitOutcome{}, err
	}

	text, err := s.store.GetText(ctx, session.TextID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if len(answers) != len(text.Questions) {
		return SubmitOutcome{}, apperrors.InvalidFormat("answers", "must have one entry per question")
	}
	duration := time.Duration(durationMS) * time.Millisecond
	if duration < minDuration || duration > maxDuration {
		return SubmitOutcome{}, apperrors.InvalidFormat("duration_ms", "must be between 1 second and 30 minutes")
	}

	// Completing first makes the session single-use even when two
	// submits race; the loser sees the conflict.
	if err := s.store.CompleteAssessmentSession(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return SubmitOutcome{}, apperrors.Conflict("assessment already submitted")
		}
		return SubmitOutcome{}, err
	}

	correct := assessment.Grade(text.Questions, answers)
	total := len(text.Questions)
	comprehension := float64(correct) / float64(total) * 100
	wpm := assessment.WordsPerMinute(text.WordCount, duration)

	resultID := uuid.NewString()
	verdict, err := s.scorer.Score(ctx, ScoreRequest{
		ResultID:      resultID,
		WPM:           wpm,
		Comprehension: comprehension,
		Difficulty:    text.Difficulty,
	})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("scoring service unavailable; using local formula")
		if s.mx != nil {
			s.mx.RecordScorerFailure()
		}
		verdict, _ = MockScorer{}.Score(ctx, ScoreRequest{WPM: wpm, Comprehension: comprehension, Difficulty: text.Difficulty})
	}

	result, err := s.store.CreateResult(ctx, assessment.Result{
		ID:            resultID,
		UserID:        user.ID,
		TextID:        text.ID,
		SessionID:     sessionID,
		WPM:           wpm,
		Comprehension: comprehension,
		Score:         verdict.Score,
		DurationMS:    durationMS,
		Correct:       correct,
		Total:         total,
	})
	if err != nil {
		return SubmitOutcome{}, err
	}

	// Counter and cache updates ride behind the result; losing one must
	// not fail the request.
	if err := s.subs.ConsumeAssessment(ctx, user.ID); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("usage counter update failed")
	}
	if err := s.board.RecordAssessment(ctx, user.ID, wpm); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("leaderboard update failed")
	}
	if s.mx != nil {
		s.mx.RecordAssessmentCompleted()
	}

	s.log.WithContext(ctx).
		WithField("session_id", sessionID).
		WithField("wpm", wpm).
		WithField("score", verdict.Score).
		Info("assessment submitted")
	return SubmitOutcome{Result: result, Rating: verdict.Rating, Model: verdict.Model}, nil
}

// Results pages through the reader's results, newest first.
func (s *Service) Results(ctx context.Context, userID string, page, per int) ([]assessment.Result, error) {
	if page < 1 {
		page = 1
	}
	if per < 1 || per > 100 {
		per = 20
	}
	return s.store.ListResultsByUser(ctx, userID, (page-1)*per, per)
}

// GetResult returns one result. Only its owner or an admin may read it.
func (s *Service) GetResult(ctx context.Context, caller profile.Profile, id string) (assessment.Result, error) {
	r, err := s.store.GetResult(ctx, id)
	if err != nil {
		return assessment.Result{}, err
	}
	if r.UserID != caller.ID && !caller.IsAdmin() {
		return assessment.Result{}, apperrors.Forbidden("not your result")
	}
	return r, nil
}

// ProgressPoint is one result in a reader's WPM history.
type ProgressPoint struct {
	CreatedAt     time.Time
	WPM           int
	Comprehension float64
	Score         float64
}

// Progress returns the reader's recent results in chronological order.
func (s *Service) Progress(ctx context.Context, userID string, limit int) ([]ProgressPoint, error) {
	if limit < 1 || limit > 100 {
		limit = 30
	}
	results, err := s.store.ListResultsByUser(ctx, userID, 0, limit)
	if err != nil {
		return nil, err
	}

	points := make([]ProgressPoint, len(results))
	for i, r := range results {
		points[len(results)-1-i] = ProgressPoint{
			CreatedAt:     r.CreatedAt,
			WPM:           r.WPM,
			Comprehension: r.Comprehension,
			Score:         r.Score,
		}
	}
	return points, nil
}

// TextInput is the payload for creating an assessment text.
type TextInput struct {
	Title      string
	Content    string
	Difficulty string
	Questions  []assessment.Question
	Active     bool
}

// CreateText adds a text to the library. Word count is computed from the
// content.
func (s *Service) CreateText(ctx context.Context, in TextInput) (assessment.Text, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > 200 {
		return assessment.Text{}, apperrors.InvalidFormat("title", "must be 1-200 characters")
	}
	content := strings.TrimSpace(in.Content)
	words := len(strings.Fields(content))
	if words < 10 {
		return assessment.Text{}, apperrors.InvalidFormat("content", "must contain at least 10 words")
	}
	if !assessment.ValidDifficulty(in.Difficulty) {
		return assessment.Text{}, apperrors.InvalidFormat("difficulty", "must be easy, medium or hard")
	}
	if err := validateQuestions(in.Questions); err != nil {
		return assessment.Text{}, err
	}

	created, err := s.store.CreateText(ctx, assessment.Text{
		Title:      title,
		Content:    content,
		WordCount:  words,
		Difficulty: in.Difficulty,
		Questions:  in.Questions,
		Active:     in.Active,
	})
	if err != nil {
		return assessment.Text{}, err
	}
	s.log.WithContext(ctx).
		WithField("text_id", created.ID).
		WithField("words", words).
		Info("assessment text created")
	return created, nil
}

// TextUpdate carries a partial text edit; nil fields are untouched.
type TextUpdate struct {
	Title      *string
	Content    *string
	Difficulty *string
	Questions  *[]assessment.Question
	Active     *bool
}

// UpdateText edits a text. Changing the content recomputes its word
// count.
func (s *Service) UpdateText(ctx context.Context, id string, in TextUpdate) (assessment.Text, error) {
	t, err := s.store.GetText(ctx, id)
	if err != nil {
		return assessment.Text{}, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > 200 {
			return assessment.Text{}, apperrors.InvalidFormat("title", "must be 1-200 characters")
		}
		t.Title = title
	}
	if in.Content != nil {
		content := strings.TrimSpace(*in.Content)
		words := len(strings.Fields(content))
		if words < 10 {
			return assessment.Text{}, apperrors.InvalidFormat("content", "must contain at least 10 words")
		}
		t.Content = content
		t.WordCount = words
	}
	if in.Difficulty != nil {
		if !assessment.ValidDifficulty(*in.Difficulty) {
			return assessment.Text{}, apperrors.InvalidFormat("difficulty", "must be easy, medium or hard")
		}
		t.Difficulty = *in.Difficulty
	}
	if in.Questions != nil {
		if err := validateQuestions(*in.Questions); err != nil {
			return assessment.Text{}, err
		}
		t.Questions = *in.Questions
	}
	if in.Active != nil {
		t.Active = *in.Active
	}

	return s.store.UpdateText(ctx, t)
}

// GetText returns a text with its answers. Admin surface only.
func (s *Service) GetText(ctx context.Context, id string) (assessment.Text, error) {
	return s.store.GetText(ctx, id)
}

// DeleteText removes a text. Existing results keep their text id.
func (s *Service) DeleteText(ctx context.Context, id string) error {
	if err := s.store.DeleteText(ctx, id); err != nil {
		return err
	}
	s.log.WithContext(ctx).WithField("text_id", id).Info("assessment text deleted")
	return nil
}

func validateQuestions(questions []assessment.Question) error {
	if len(questions) < 1 || len(questions) > 20 {
		return apperrors.InvalidFormat("questions", "must have 1-20 entries")
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return apperrors.InvalidFormat("questions", fmt.Sprintf("question %d is missing a prompt", i+1))
		}
		if len(q.Options) < 2 || len(q.Options) > 6 {
			return apperrors.InvalidFormat("questions", fmt.Sprintf("question %d must have 2-6 options", i+1))
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			return apperrors.InvalidFormat("questions", fmt.Sprintf("question %d answer index out of range", i+1))
		}
	}
	return nil
}
