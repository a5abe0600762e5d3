// Package supabase implements the storage interfaces on top of the
// Supabase PostgREST API.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/flag"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/database"
)

const dayFormat = "2006-01-02"

// Store implements the storage interfaces against a Supabase project.
type Store struct {
	client *database.Client
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.BookStore = (*Store)(nil)
var _ storage.ReadingStore = (*Store)(nil)
var _ storage.AssessmentStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.FlagStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates a Store over the given Supabase client.
func New(client *database.Client) *Store {
	return &Store{client: client}
}

// Ping issues a minimal read to verify the REST API is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Request(ctx, http.MethodGet, "profiles", nil, "select=id&limit=1")
	return err
}

func fetch[T any](ctx context.Context, c *database.Client, table, query string) ([]T, error) {
	data, err := c.Request(ctx, http.MethodGet, table, nil, query)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return rows, nil
}

func mutate[T any](ctx context.Context, c *database.Client, method, table string, body interface{}, query string) ([]T, error) {
	data, err := c.Request(ctx, method, table, body, query)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return rows, nil
}

func mapError(err error, what string) error {
	switch database.ErrorStatus(err) {
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", what, storage.ErrConflict)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}

func escape(v string) string {
	return neturl.QueryEscape(v)
}

// ProfileStore implementation ------------------------------------------------

type profileRow struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Bio          string    `json:"bio"`
	AvatarURL    string    `json:"avatar_url"`
	Role         string    `json:"role"`
	Tier         string    `json:"tier"`
	ReadingGoal  int       `json:"reading_goal"`
	Genres       []string  `json:"preferred_genres"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r profileRow) toDomain() profile.Profile {
	return profile.Profile{
		ID:              r.ID,
		Email:           r.Email,
		PasswordHash:    r.PasswordHash,
		Username:        r.Username,
		DisplayName:     r.DisplayName,
		Bio:             r.Bio,
		AvatarURL:       r.AvatarURL,
		Role:            r.Role,
		Tier:            r.Tier,
		ReadingGoal:     r.ReadingGoal,
		PreferredGenres: r.Genres,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func profileFromDomain(p profile.Profile) profileRow {
	genres := p.PreferredGenres
	if genres == nil {
		genres = []string{}
	}
	return profileRow{
		ID:           p.ID,
		Email:        strings.ToLower(p.Email),
		PasswordHash: p.PasswordHash,
		Username:     p.Username,
		DisplayName:  p.DisplayName,
		Bio:          p.Bio,
		AvatarURL:    p.AvatarURL,
		Role:         p.Role,
		Tier:         p.Tier,
		ReadingGoal:  p.ReadingGoal,
		Genres:       genres,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	rows, err := mutate[profileRow](ctx, s.client, http.MethodPost, "profiles", profileFromDomain(p), "")
	if err != nil {
		return profile.Profile{}, mapError(err, "profile")
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("create profile: empty response")
	}
	return rows[0].toDomain(), nil
}

type profilePatch struct {
	Email        string   `json:"email"`
	PasswordHash string   `json:"password_hash"`
	Username     string   `json:"username"`
	DisplayName  string   `json:"display_name"`
	Bio          string   `json:"bio"`
	AvatarURL    string   `json:"avatar_url"`
	Role         string   `json:"role"`
	Tier         string   `json:"tier"`
	ReadingGoal  int      `json:"reading_goal"`
	Genres       []string `json:"preferred_genres"`
	UpdatedAt    string   `json:"updated_at"`
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	genres := p.PreferredGenres
	if genres == nil {
		genres = []string{}
	}
	patch := profilePatch{
		Email:        strings.ToLower(p.Email),
		PasswordHash: p.PasswordHash,
		Username:     p.Username,
		DisplayName:  p.DisplayName,
		Bio:          p.Bio,
		AvatarURL:    p.AvatarURL,
		Role:         p.Role,
		Tier:         p.Tier,
		ReadingGoal:  p.ReadingGoal,
		Genres:       genres,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}

	rows, err := mutate[profileRow](ctx, s.client, http.MethodPatch, "profiles", patch, "id=eq."+escape(p.ID))
	if err != nil {
		return profile.Profile{}, mapError(err, "profile")
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", p.ID, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	rows, err := fetch[profileRow](ctx, s.client, "profiles", "id=eq."+escape(id)+"&limit=1")
	if err != nil {
		return profile.Profile{}, err
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetProfileByEmail(ctx context.Context, email string) (profile.Profile, error) {
	query := "email=eq." + escape(strings.ToLower(email)) + "&limit=1"
	rows, err := fetch[profileRow](ctx, s.client, "profiles", query)
	if err != nil {
		return profile.Profile{}, err
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("profile email: %w", storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetProfileByUsername(ctx context.Context, username string) (profile.Profile, error) {
	// ilike without wildcards is a case-insensitive match.
	query := "username=ilike." + escape(username) + "&limit=1"
	rows, err := fetch[profileRow](ctx, s.client, "profiles", query)
	if err != nil {
		return profile.Profile{}, err
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("profile username: %w", storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) ListProfiles(ctx context.Context, offset, limit int) ([]profile.Profile, error) {
	query := fmt.Sprintf("order=created_at.asc,id.asc&offset=%d&limit=%d", offset, limit)
	rows, err := fetch[profileRow](ctx, s.client, "profiles", query)
	if err != nil {
		return nil, err
	}
	result := make([]profile.Profile, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) CountProfiles(ctx context.Context) (int, error) {
	return s.client.Count(ctx, "profiles", "")
}

// SessionStore implementation ------------------------------------------------

type sessionRow struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (r sessionRow) toDomain() profile.Session {
	return profile.Session(r)
}

func (s *Store) CreateSession(ctx context.Context, sess profile.Session) (profile.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.LastSeenAt = now

	rows, err := mutate[sessionRow](ctx, s.client, http.MethodPost, "user_sessions", sessionRow(sess), "")
	if err != nil {
		return profile.Session{}, mapError(err, "session")
	}
	if len(rows) == 0 {
		return profile.Session{}, fmt.Errorf("create session: empty response")
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (profile.Session, error) {
	query := "token_hash=eq." + escape(tokenHash) + "&limit=1"
	rows, err := fetch[sessionRow](ctx, s.client, "user_sessions", query)
	if err != nil {
		return profile.Session{}, err
	}
	if len(rows) == 0 {
		return profile.Session{}, fmt.Errorf("session: %w", storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) TouchSession(ctx context.Context, id string, seenAt time.Time) error {
	body := map[string]string{"last_seen_at": seenAt.UTC().Format(time.RFC3339Nano)}
	rows, err := mutate[sessionRow](ctx, s.client, http.MethodPatch, "user_sessions", body, "id=eq."+escape(id))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	rows, err := mutate[sessionRow](ctx, s.client, http.MethodDelete, "user_sessions", nil, "id=eq."+escape(id))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSessionsByUser(ctx context.Context, userID string) error {
	_, err := mutate[sessionRow](ctx, s.client, http.MethodDelete, "user_sessions", nil, "user_id=eq."+escape(userID))
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	query := "expires_at=lt." + escape(before.UTC().Format(time.RFC3339Nano))
	rows, err := mutate[sessionRow](ctx, s.client, http.MethodDelete, "user_sessions", nil, query)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// BookStore implementation ---------------------------------------------------

type bookRow struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Genre       string    `json:"genre"`
	TotalPages  int       `json:"total_pages"`
	ISBN        string    `json:"isbn"`
	CoverURL    string    `json:"cover_url"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r bookRow) toDomain() book.Book {
	return book.Book(r)
}

func (s *Store) CreateBook(ctx context.Context, b book.Book) (book.Book, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	rows, err := mutate[bookRow](ctx, s.client, http.MethodPost, "books", bookRow(b), "")
	if err != nil {
		return book.Book{}, mapError(err, "book")
	}
	if len(rows) == 0 {
		return book.Book{}, fmt.Errorf("create book: empty response")
	}
	return rows[0].toDomain(), nil
}

type bookPatch struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	TotalPages  int    `json:"total_pages"`
	ISBN        string `json:"isbn"`
	CoverURL    string `json:"cover_url"`
	UpdatedAt   string `json:"updated_at"`
}

func (s *Store) UpdateBook(ctx context.Context, b book.Book) (book.Book, error) {
	patch := bookPatch{
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Genre:       b.Genre,
		TotalPages:  b.TotalPages,
		ISBN:        b.ISBN,
		CoverURL:    b.CoverURL,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	rows, err := mutate[bookRow](ctx, s.client, http.MethodPatch, "books", patch, "id=eq."+escape(b.ID))
	if err != nil {
		return book.Book{}, mapError(err, "book")
	}
	if len(rows) == 0 {
		return book.Book{}, fmt.Errorf("book %s: %w", b.ID, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetBook(ctx context.Context, id string) (book.Book, error) {
	rows, err := fetch[bookRow](ctx, s.client, "books", "id=eq."+escape(id)+"&limit=1")
	if err != nil {
		return book.Book{}, err
	}
	if len(rows) == 0 {
		return book.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func bookFilterQuery(filter book.Filter) string {
	parts := make([]string, 0, 2)
	if filter.Genre != "" {
		parts = append(parts, "genre=ilike."+escape(filter.Genre))
	}
	if filter.Search != "" {
		term := escape(filter.Search)
		parts = append(parts, "or=(title.ilike.*"+term+"*,author.ilike.*"+term+"*)")
	}
	return strings.Join(parts, "&")
}

func (s *Store) ListBooks(ctx context.Context, filter book.Filter) ([]book.Book, int, error) {
	filter = filter.Normalize()
	filterQuery := bookFilterQuery(filter)

	total, err := s.client.Count(ctx, "books", filterQuery)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("order=created_at.desc,id.asc&offset=%d&limit=%d", filter.Offset(), filter.PerPage)
	if filterQuery != "" {
		query = filterQuery + "&" + query
	}
	rows, err := fetch[bookRow](ctx, s.client, "books", query)
	if err != nil {
		return nil, 0, err
	}
	result := make([]book.Book, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, total, nil
}

func (s *Store) DeleteBook(ctx context.Context, id string) error {
	rows, err := mutate[bookRow](ctx, s.client, http.MethodDelete, "books", nil, "id=eq."+escape(id))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ReadingStore implementation ------------------------------------------------

type submissionRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	PagesRead int       `json:"pages_read"`
	ReadOn    string    `json:"read_on"`
	CreatedAt time.Time `json:"created_at"`
}

func (r submissionRow) toDomain() reading.Submission {
	readOn, _ := time.ParseInLocation(dayFormat, r.ReadOn, time.UTC)
	return reading.Submission{
		ID:        r.ID,
		UserID:    r.UserID,
		BookID:    r.BookID,
		PagesRead: r.PagesRead,
		ReadOn:    readOn,
		CreatedAt: r.CreatedAt,
	}
}

func (s *Store) CreateSubmission(ctx context.Context, sub reading.Submission) (reading.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	row := submissionRow{
		ID:        sub.ID,
		UserID:    sub.UserID,
		BookID:    sub.BookID,
		PagesRead: sub.PagesRead,
		ReadOn:    reading.Day(sub.ReadOn).Format(dayFormat),
		CreatedAt: time.Now().UTC(),
	}
	rows, err := mutate[submissionRow](ctx, s.client, http.MethodPost, "reading_submissions", row, "")
	if err != nil {
		return reading.Submission{}, mapError(err, "submission")
	}
	if len(rows) == 0 {
		return reading.Submission{}, fmt.Errorf("create submission: empty response")
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (reading.Submission, error) {
	rows, err := fetch[submissionRow](ctx, s.client, "reading_submissions", "id=eq."+escape(id)+"&limit=1")
	if err != nil {
		return reading.Submission{}, err
	}
	if len(rows) == 0 {
		return reading.Submission{}, fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	rows, err := mutate[submissionRow](ctx, s.client, http.MethodDelete, "reading_submissions", nil, "id=eq."+escape(id))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListSubmissionsByUser(ctx context.Context, userID string, from, to time.Time) ([]reading.Submission, error) {
	query := "user_id=eq." + escape(userID)
	if !from.IsZero() {
		query += "&read_on=gte." + reading.Day(from).Format(dayFormat)
	}
	if !to.IsZero() {
		query += "&read_on=lte." + reading.Day(to).Format(dayFormat)
	}
	query += "&order=read_on.desc,id.asc"

	rows, err := fetch[submissionRow](ctx, s.client, "reading_submissions", query)
	if err != nil {
		return nil, err
	}
	result := make([]reading.Submission, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) CountSubmissionsOnDay(ctx context.Context, userID string, day time.Time) (int, error) {
	query := "user_id=eq." + escape(userID) + "&read_on=eq." + reading.Day(day).Format(dayFormat)
	return s.client.Count(ctx, "reading_submissions", query)
}

func (s *Store) SumPagesByUser(ctx context.Context, since time.Time) ([]storage.UserTotal, error) {
	query := "select=user_id,pages_read"
	if !since.IsZero() {
		query += "&read_on=gte." + reading.Day(since).Format(dayFormat)
	}
	rows, err := fetch[struct {
		UserID    string `json:"user_id"`
		PagesRead int    `json:"pages_read"`
	}](ctx, s.client, "reading_submissions", query)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64, len(rows))
	for _, r := range rows {
		sums[r.UserID] += float64(r.PagesRead)
	}
	return sortedTotals(sums), nil
}

// AssessmentStore implementation ---------------------------------------------

type questionRow struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

func questionsToDomain(rows []questionRow) []assessment.Question {
	questions := make([]assessment.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, assessment.Question(r))
	}
	return questions
}

func questionsFromDomain(questions []assessment.Question) []questionRow {
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, questionRow(q))
	}
	return rows
}

type textRow struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Content    string        `json:"content"`
	WordCount  int           `json:"word_count"`
	Difficulty string        `json:"difficulty"`
	Questions  []questionRow `json:"questions"`
	Active     bool          `json:"active"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (r textRow) toDomain() assessment.Text {
	return assessment.Text{
		ID:         r.ID,
		Title:      r.Title,
		Content:    r.Content,
		WordCount:  r.WordCount,
		Difficulty: r.Difficulty,
		Questions:  questionsToDomain(r.Questions),
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (s *Store) CreateText(ctx context.Context, t assessment.Text) (assessment.Text, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := textRow{
		ID:         t.ID,
		Title:      t.Title,
		Content:    t.Content,
		WordCount:  t.WordCount,
		Difficulty: t.Difficulty,
		Questions:  questionsFromDomain(t.Questions),
		Active:     t.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	rows, err := mutate[textRow](ctx, s.client, http.MethodPost, "assessment_texts", row, "")
	if err != nil {
		return assessment.Text{}, mapError(err, "text")
	}
	if len(rows) == 0 {
		return assessment.Text{}, fmt.Errorf("create text: empty response")
	}
	return rows[0].toDomain(), nil
}

type textPatch struct {
	Title      string        `json:"title"`
	Content    string        `json:"content"`
	WordCount  int           `json:"word_count"`
	Difficulty string        `json:"difficulty"`
	Questions  []questionRow `json:"questions"`
	Active     bool          `json:"active"`
	UpdatedAt  string        `json:"updated_at"`
}

func (s *Store) UpdateText(ctx context.Context, t assessment.Text) (assessment.Text, error) {
	patch := textPatch{
		Title:      t.Title,
		Content:    t.Content,
		WordCount:  t.WordCount,
		Difficulty: t.Difficulty,
		Questions:  questionsFromDomain(t.Questions),
		Active:     t.Active,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	rows, err := mutate[textRow](ctx, s.client, http.MethodPatch, "assessment_texts", patch, "id=eq."+escape(t.ID))
	if err != nil {
		return assessment.Text{}, mapError(err, "text")
	}
	if len(rows) == 0 {
		return assessment.Text{}, fmt.Errorf("text %s: %w", t.ID, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetText(ctx context.Context, id string) (assessment.Text, error) {
	rows, err := fetch[textRow](ctx, s.client, "assessment_texts", "id=eq."+escape(id)+"&limit=1")
	if err != nil {
		return assessment.Text{}, err
	}
	if len(rows) == 0 {
		return assessment.Text{}, fmt.Errorf("text %s: %w", id, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) ListTexts(ctx context.Context, onlyActive bool) ([]assessment.Text, error) {
	query := "order=created_at.asc,id.asc"
	if onlyActive {
		query = "active=is.true&" + query
	}
	rows, err := fetch[textRow](ctx, s.client, "assessment_texts", query)
	if err != nil {
		return nil, err
	}
	result := make([]assessment.Text, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteText(ctx context.Context, id string) error {
	rows, err := mutate[textRow](ctx, s.client, http.MethodDelete, "assessment_texts", nil, "id=eq."+escape(id))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("text %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

type attemptRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TextID    string    `json:"text_id"`
	StartedAt time.Time `json:"started_at"`
	Completed bool      `json:"completed"`
}

func (r attemptRow) toDomain() assessment.Session {
	return assessment.Session(r)
}

func (s *Store) CreateAssessmentSession(ctx context.Context, sess assessment.Session) (assessment.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	rows, err := mutate[attemptRow](ctx, s.client, http.MethodPost, "assessment_sessions", attemptRow(sess), "")
	if err != nil {
		return assessment.Session{}, mapError(err, "assessment session")
	}
	if len(rows) == 0 {
		return assessment.Session{}, fmt.Errorf("create assessment session: empty response")
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetAssessmentSession(ctx context.Context, id string) (assessment.Session, error) {
	rows, err := fetch[attemptRow](ctx, s.client, "assessment_sessions", "id=eq."+escape(id)+"&limit=1")
	if err != nil {
		return assessment.Session{}, err
	}
	if len(rows) == 0 {
		return assessment.Session{}, fmt.Errorf("assessment session %s: %w", id, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) CompleteAssessmentSession(ctx context.Context, id string) error {
	body := map[string]bool{"completed": true}
	query := "id=eq." + escape(id) + "&completed=is.false"
	rows, err := mutate[attemptRow](ctx, s.client, http.MethodPatch, "assessment_sessions", body, query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if _, getErr := s.GetAssessmentSession(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("assessment session %s: %w", id, storage.ErrConflict)
	}
	return nil
}

type resultRow struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	TextID        string    `json:"text_id"`
	SessionID     string    `json:"session_id"`
	WPM           int       `json:"wpm"`
	Comprehension float64   `json:"comprehension"`
	Score         float64   `json:"score"`
	DurationMS    int64     `json:"duration_ms"`
	Correct       int       `json:"correct"`
	Total         int       `json:"total"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r resultRow) toDomain() assessment.Result {
	return assessment.Result(r)
}

func (s *Store) CreateResult(ctx context.Context, r assessment.Result) (assessment.Result, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()

	rows, err := mutate[resultRow](ctx, s.client, http.MethodPost, "assessment_results", resultRow(r), "")
	if err != nil {
		return assessment.Result{}, mapError(err, "result")
	}
	if len(rows) == 0 {
		return assessment.Result{}, fmt.Errorf("create result: empty response")
	}
	return rows[0].toDomain(), nil
}

func (s *Store) GetResult(ctx context.Context, id string) (assessment.Result, error) {
	rows, err := fetch[resultRow](ctx, s.client, "assessment_results", "id=eq."+escape(id)+"&limit=1")
	if err != nil {
		return assessment.Result{}, err
	}
	if len(rows) == 0 {
		return assessment.Result{}, fmt.Errorf("result %s: %w", id, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) ListResultsByUser(ctx context.Context, userID string, offset, limit int) ([]assessment.Result, error) {
	query := fmt.Sprintf("user_id=eq.%s&order=created_at.desc,id.desc&offset=%d&limit=%d",
		escape(userID), offset, limit)
	rows, err := fetch[resultRow](ctx, s.client, "assessment_results", query)
	if err != nil {
		return nil, err
	}
	result := make([]assessment.Result, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) BestWPMByUser(ctx context.Context, since time.Time) ([]storage.UserTotal, error) {
	query := "select=user_id,wpm"
	if !since.IsZero() {
		query += "&created_at=gte." + escape(since.UTC().Format(time.RFC3339Nano))
	}
	rows, err := fetch[struct {
		UserID string `json:"user_id"`
		WPM    int    `json:"wpm"`
	}](ctx, s.client, "assessment_results", query)
	if err != nil {
		return nil, err
	}

	best := make(map[string]float64, len(rows))
	for _, r := range rows {
		if float64(r.WPM) > best[r.UserID] {
			best[r.UserID] = float64(r.WPM)
		}
	}
	return sortedTotals(best), nil
}

// SubscriptionStore implementation -------------------------------------------

type limitsRow struct {
	Tier                string    `json:"tier"`
	AssessmentsPerMonth int       `json:"assessments_per_month"`
	SubmissionsPerDay   int       `json:"submissions_per_day"`
	CanCreateBooks      bool      `json:"can_create_books"`
	LiveLeaderboard     bool      `json:"live_leaderboard"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (r limitsRow) toDomain() subscription.Limits {
	return subscription.Limits(r)
}

func (s *Store) GetLimits(ctx context.Context, tier string) (subscription.Limits, error) {
	rows, err := fetch[limitsRow](ctx, s.client, "subscription_limits", "tier=eq."+escape(tier)+"&limit=1")
	if err != nil {
		return subscription.Limits{}, err
	}
	if len(rows) == 0 {
		return subscription.Limits{}, fmt.Errorf("limits %s: %w", tier, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) SetLimits(ctx context.Context, limits subscription.Limits) (subscription.Limits, error) {
	limits.UpdatedAt = time.Now().UTC()
	row := limitsRow(limits)

	updated, err := mutate[limitsRow](ctx, s.client, http.MethodPatch, "subscription_limits", row, "tier=eq."+escape(limits.Tier))
	if err != nil {
		return subscription.Limits{}, err
	}
	if len(updated) > 0 {
		return updated[0].toDomain(), nil
	}

	created, err := mutate[limitsRow](ctx, s.client, http.MethodPost, "subscription_limits", row, "")
	if err != nil {
		return subscription.Limits{}, mapError(err, "limits")
	}
	if len(created) == 0 {
		return subscription.Limits{}, fmt.Errorf("set limits: empty response")
	}
	return created[0].toDomain(), nil
}

func (s *Store) ListLimits(ctx context.Context) ([]subscription.Limits, error) {
	rows, err := fetch[limitsRow](ctx, s.client, "subscription_limits", "order=tier.asc")
	if err != nil {
		return nil, err
	}
	result := make([]subscription.Limits, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

type usageRow struct {
	UserID           string    `json:"user_id"`
	Month            string    `json:"month"`
	AssessmentsTaken int       `json:"assessments_taken"`
	SubmissionsCount int       `json:"submissions_count"`
	PagesRead        int       `json:"pages_read"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (r usageRow) toDomain() subscription.Usage {
	return subscription.Usage(r)
}

func (s *Store) GetUsage(ctx context.Context, userID, month string) (subscription.Usage, error) {
	query := "user_id=eq." + escape(userID) + "&month=eq." + escape(month) + "&limit=1"
	rows, err := fetch[usageRow](ctx, s.client, "user_monthly_usage", query)
	if err != nil {
		return subscription.Usage{}, err
	}
	if len(rows) == 0 {
		return subscription.Usage{}, fmt.Errorf("usage: %w", storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

type usagePatch struct {
	AssessmentsTaken int    `json:"assessments_taken"`
	SubmissionsCount int    `json:"submissions_count"`
	PagesRead        int    `json:"pages_read"`
	UpdatedAt        string `json:"updated_at"`
}

func (s *Store) IncrementUsage(ctx context.Context, userID, month string, assessments, submissions, pages int) (subscription.Usage, error) {
	key := "user_id=eq." + escape(userID) + "&month=eq." + escape(month)

	// Two attempts cover the insert race: a concurrent first write makes
	// the POST conflict, after which the PATCH path applies.
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.GetUsage(ctx, userID, month)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return subscription.Usage{}, err
			}
			row := usageRow{
				UserID:           userID,
				Month:            month,
				AssessmentsTaken: assessments,
				SubmissionsCount: submissions,
				PagesRead:        pages,
				UpdatedAt:        time.Now().UTC(),
			}
			created, postErr := mutate[usageRow](ctx, s.client, http.MethodPost, "user_monthly_usage", row, "")
			if postErr != nil {
				if database.ErrorStatus(postErr) == http.StatusConflict {
					continue
				}
				return subscription.Usage{}, postErr
			}
			if len(created) == 0 {
				return subscription.Usage{}, fmt.Errorf("increment usage: empty response")
			}
			return created[0].toDomain(), nil
		}

		patch := usagePatch{
			AssessmentsTaken: current.AssessmentsTaken + assessments,
			SubmissionsCount: current.SubmissionsCount + submissions,
			PagesRead:        current.PagesRead + pages,
			UpdatedAt:        time.Now().UTC().Format(time.RFC3339Nano),
		}
		updated, err := mutate[usageRow](ctx, s.client, http.MethodPatch, "user_monthly_usage", patch, key)
		if err != nil {
			return subscription.Usage{}, err
		}
		if len(updated) > 0 {
			return updated[0].toDomain(), nil
		}
	}
	return subscription.Usage{}, fmt.Errorf("increment usage: row disappeared")
}

func (s *Store) ListUsageByMonth(ctx context.Context, month string) ([]subscription.Usage, error) {
	query := "month=eq." + escape(month) + "&order=user_id.asc"
	rows, err := fetch[usageRow](ctx, s.client, "user_monthly_usage", query)
	if err != nil {
		return nil, err
	}
	result := make([]subscription.Usage, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteUsageBefore(ctx context.Context, month string) (int, error) {
	rows, err := mutate[usageRow](ctx, s.client, http.MethodDelete, "user_monthly_usage", nil, "month=lt."+escape(month))
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// FlagStore implementation ---------------------------------------------------

type flagRow struct {
	Key         string    `json:"key"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	MinTier     string    `json:"min_tier"`
	AdminOnly   bool      `json:"admin_only"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r flagRow) toDomain() flag.Flag {
	return flag.Flag(r)
}

func (s *Store) UpsertFlag(ctx context.Context, f flag.Flag) (flag.Flag, error) {
	f.UpdatedAt = time.Now().UTC()
	row := flagRow(f)

	updated, err := mutate[flagRow](ctx, s.client, http.MethodPatch, "feature_flags", row, "key=eq."+escape(f.Key))
	if err != nil {
		return flag.Flag{}, err
	}
	if len(updated) > 0 {
		return updated[0].toDomain(), nil
	}

	created, err := mutate[flagRow](ctx, s.client, http.MethodPost, "feature_flags", row, "")
	if err != nil {
		return flag.Flag{}, mapError(err, "flag")
	}
	if len(created) == 0 {
		return flag.Flag{}, fmt.Errorf("upsert flag: empty response")
	}
	return created[0].toDomain(), nil
}

func (s *Store) GetFlag(ctx context.Context, key string) (flag.Flag, error) {
	rows, err := fetch[flagRow](ctx, s.client, "feature_flags", "key=eq."+escape(key)+"&limit=1")
	if err != nil {
		return flag.Flag{}, err
	}
	if len(rows) == 0 {
		return flag.Flag{}, fmt.Errorf("flag %s: %w", key, storage.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

func (s *Store) ListFlags(ctx context.Context) ([]flag.Flag, error) {
	rows, err := fetch[flagRow](ctx, s.client, "feature_flags", "order=key.asc")
	if err != nil {
		return nil, err
	}
	result := make([]flag.Flag, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteFlag(ctx context.Context, key string) error {
	rows, err := mutate[flagRow](ctx, s.client, http.MethodDelete, "feature_flags", nil, "key=eq."+escape(key))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("flag %s: %w", key, storage.ErrNotFound)
	}
	return nil
}

// helpers --------------------------------------------------------------------

func sortedTotals(values map[string]float64) []storage.UserTotal {
	totals := make([]storage.UserTotal, 0, len(values))
	for userID, value := range values {
		totals = append(totals, storage.UserTotal{UserID: userID, Value: value})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Value != totals[j].Value {
			return totals[i].Value > totals[j].Value
		}
		return totals[i].UserID < totals[j].UserID
	})
	return totals
}
