package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/flag"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.BookStore = (*Store)(nil)
var _ storage.ReadingStore = (*Store)(nil)
var _ storage.AssessmentStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.FlagStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping reports database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// uniqueViolation is the postgres error code for unique constraint hits.
const uniqueViolation = "23505"

func mapWriteError(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, storage.ErrConflict)
	}
	return err
}

func mapReadError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}

// --- ProfileStore -----------------------------------------------------------

type profileRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Username     string    `db:"username"`
	DisplayName  string    `db:"display_name"`
	Bio          string    `db:"bio"`
	AvatarURL    string    `db:"avatar_url"`
	Role         string    `db:"role"`
	Tier         string    `db:"tier"`
	ReadingGoal  int       `db:"reading_goal"`
	Genres       []byte    `db:"preferred_genres"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r profileRow) toDomain() profile.Profile {
	p := profile.Profile{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Bio:          r.Bio,
		AvatarURL:    r.AvatarURL,
		Role:         r.Role,
		Tier:         r.Tier,
		ReadingGoal:  r.ReadingGoal,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Genres) > 0 {
		_ = json.Unmarshal(r.Genres, &p.PreferredGenres)
	}
	return p
}

const profileColumns = `id, email, password_hash, username, display_name, bio, avatar_url,
	role, tier, reading_goal, preferred_genres, created_at, updated_at`

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	genres, err := json.Marshal(emptyIfNil(p.PreferredGenres))
	if err != nil {
		return profile.Profile{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, password_hash, username, display_name, bio, avatar_url,
			role, tier, reading_goal, preferred_genres, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, strings.ToLower(p.Email), p.PasswordHash, p.Username, p.DisplayName, p.Bio, p.AvatarURL,
		p.Role, p.Tier, p.ReadingGoal, genres, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, mapWriteError(err, "profile")
	}
	p.Email = strings.ToLower(p.Email)
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	existing, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		return profile.Profile{}, err
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	genres, err := json.Marshal(emptyIfNil(p.PreferredGenres))
	if err != nil {
		return profile.Profile{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET email = $2, password_hash = $3, username = $4, display_name = $5, bio = $6,
			avatar_url = $7, role = $8, tier = $9, reading_goal = $10, preferred_genres = $11,
			updated_at = $12
		WHERE id = $1
	`, p.ID, strings.ToLower(p.Email), p.PasswordHash, p.Username, p.DisplayName, p.Bio,
		p.AvatarURL, p.Role, p.Tier, p.ReadingGoal, genres, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, mapWriteError(err, "profile")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", p.ID, storage.ErrNotFound)
	}
	p.Email = strings.ToLower(p.Email)
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id = $1
	`, id)
	if err != nil {
		return profile.Profile{}, mapReadError(err, "profile "+id)
	}
	return row.toDomain(), nil
}

func (s *Store) GetProfileByEmail(ctx context.Context, email string) (profile.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE email = $1
	`, strings.ToLower(email))
	if err != nil {
		return profile.Profile{}, mapReadError(err, "profile email")
	}
	return row.toDomain(), nil
}

func (s *Store) GetProfileByUsername(ctx context.Context, username string) (profile.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE LOWER(username) = LOWER($1)
	`, username)
	if err != nil {
		return profile.Profile{}, mapReadError(err, "profile username")
	}
	return row.toDomain(), nil
}

func (s *Store) ListProfiles(ctx context.Context, offset, limit int) ([]profile.Profile, error) {
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2
	`, offset, limit)
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
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM profiles`); err != nil {
		return 0, err
	}
	return count, nil
}

// --- SessionStore -----------------------------------------------------------

type sessionRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	TokenHash  string    `db:"token_hash"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at"`
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, token_hash, expires_at, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.CreatedAt, sess.LastSeenAt)
	if err != nil {
		return profile.Session{}, mapWriteError(err, "session")
	}
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (profile.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, token_hash, expires_at, created_at, last_seen_at
		FROM user_sessions
		WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return profile.Session{}, mapReadError(err, "session")
	}
	return row.toDomain(), nil
}

func (s *Store) TouchSession(ctx context.Context, id string, seenAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions SET last_seen_at = $2 WHERE id = $1
	`, id, seenAt.UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_sessions WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSessionsByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_sessions WHERE user_id = $1
	`, userID)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_sessions WHERE expires_at < $1
	`, before.UTC())
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// --- BookStore --------------------------------------------------------------

type bookRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Author      string    `db:"author"`
	Description string    `db:"description"`
	Genre       string    `db:"genre"`
	TotalPages  int       `db:"total_pages"`
	ISBN        string    `db:"isbn"`
	CoverURL    string    `db:"cover_url"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r bookRow) toDomain() book.Book {
	return book.Book(r)
}

const bookColumns = `id, title, author, description, genre, total_pages, isbn, cover_url,
	created_by, created_at, updated_at`

func (s *Store) CreateBook(ctx context.Context, b book.Book) (book.Book, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, description, genre, total_pages, isbn, cover_url,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.Title, b.Author, b.Description, b.Genre, b.TotalPages, b.ISBN, b.CoverURL,
		b.CreatedBy, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return book.Book{}, mapWriteError(err, "book")
	}
	return b, nil
}

func (s *Store) UpdateBook(ctx context.Context, b book.Book) (book.Book, error) {
	existing, err := s.GetBook(ctx, b.ID)
	if err != nil {
		return book.Book{}, err
	}

	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE books
		SET title = $2, author = $3, description = $4, genre = $5, total_pages = $6,
			isbn = $7, cover_url = $8, updated_at = $9
		WHERE id = $1
	`, b.ID, b.Title, b.Author, b.Description, b.Genre, b.TotalPages, b.ISBN, b.CoverURL, b.UpdatedAt)
	if err != nil {
		return book.Book{}, mapWriteError(err, "book")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return book.Book{}, fmt.Errorf("book %s: %w", b.ID, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) GetBook(ctx context.Context, id string) (book.Book, error) {
	var row bookRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = $1
	`, id)
	if err != nil {
		return book.Book{}, mapReadError(err, "book "+id)
	}
	return row.toDomain(), nil
}

func (s *Store) ListBooks(ctx context.Context, filter book.Filter) ([]book.Book, int, error) {
	filter = filter.Normalize()

	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)
	if filter.Genre != "" {
		args = append(args, filter.Genre)
		where = append(where, fmt.Sprintf("LOWER(genre) = LOWER($%d)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM books`+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Offset(), filter.PerPage)
	query := fmt.Sprintf(`
		SELECT `+bookColumns+`
		FROM books`+clause+`
		ORDER BY created_at DESC, id
		OFFSET $%d LIMIT $%d
	`, len(args)-1, len(args))

	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}
	result := make([]book.Book, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, total, nil
}

func (s *Store) DeleteBook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM books WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- ReadingStore -----------------------------------------------------------

type submissionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	BookID    string    `db:"book_id"`
	PagesRead int       `db:"pages_read"`
	ReadOn    time.Time `db:"read_on"`
	CreatedAt time.Time `db:"created_at"`
}

func (r submissionRow) toDomain() reading.Submission {
	sub := reading.Submission(r)
	sub.ReadOn = reading.Day(sub.ReadOn)
	return sub
}

func (s *Store) CreateSubmission(ctx context.Context, sub reading.Submission) (reading.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.ReadOn = reading.Day(sub.ReadOn)
	sub.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_submissions (id, user_id, book_id, pages_read, read_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.UserID, sub.BookID, sub.PagesRead, sub.ReadOn, sub.CreatedAt)
	if err != nil {
		return reading.Submission{}, mapWriteError(err, "submission")
	}
	return sub, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (reading.Submission, error) {
	var row submissionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, book_id, pages_read, read_on, created_at
		FROM reading_submissions
		WHERE id = $1
	`, id)
	if err != nil {
		return reading.Submission{}, mapReadError(err, "submission "+id)
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM reading_submissions WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListSubmissionsByUser(ctx context.Context, userID string, from, to time.Time) ([]reading.Submission, error) {
	query := `
		SELECT id, user_id, book_id, pages_read, read_on, created_at
		FROM reading_submissions
		WHERE user_id = $1`
	args := []interface{}{userID}
	if !from.IsZero() {
		args = append(args, reading.Day(from))
		query += fmt.Sprintf(" AND read_on >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, reading.Day(to))
		query += fmt.Sprintf(" AND read_on <= $%d", len(args))
	}
	query += " ORDER BY read_on DESC, id"

	var rows []submissionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]reading.Submission, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) CountSubmissionsOnDay(ctx context.Context, userID string, day time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM reading_submissions
		WHERE user_id = $1 AND read_on = $2
	`, userID, reading.Day(day))
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SumPagesByUser(ctx context.Context, since time.Time) ([]storage.UserTotal, error) {
	query := `
		SELECT user_id, SUM(pages_read)::float8 AS value
		FROM reading_submissions`
	args := []interface{}{}
	if !since.IsZero() {
		args = append(args, reading.Day(since))
		query += " WHERE read_on >= $1"
	}
	query += `
		GROUP BY user_id
		ORDER BY value DESC, user_id`

	return s.queryTotals(ctx, query, args...)
}

// --- AssessmentStore --------------------------------------------------------

type questionRow struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

func marshalQuestions(questions []assessment.Question) ([]byte, error) {
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, questionRow(q))
	}
	return json.Marshal(rows)
}

type textRow struct {
	ID         string    `db:"id"`
	Title      string    `db:"title"`
	Content    string    `db:"content"`
	WordCount  int       `db:"word_count"`
	Difficulty string    `db:"difficulty"`
	Questions  []byte    `db:"questions"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r textRow) toDomain() assessment.Text {
	t := assessment.Text{
		ID:         r.ID,
		Title:      r.Title,
		Content:    r.Content,
		WordCount:  r.WordCount,
		Difficulty: r.Difficulty,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Questions) > 0 {
		var rows []questionRow
		if err := json.Unmarshal(r.Questions, &rows); err == nil {
			t.Questions = make([]assessment.Question, 0, len(rows))
			for _, q := range rows {
				t.Questions = append(t.Questions, assessment.Question(q))
			}
		}
	}
	return t
}

const textColumns = `id, title, content, word_count, difficulty, questions, active, created_at, updated_at`

func (s *Store) CreateText(ctx context.Context, t assessment.Text) (assessment.Text, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	questions, err := marshalQuestions(t.Questions)
	if err != nil {
		return assessment.Text{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessment_texts (id, title, content, word_count, difficulty, questions, active,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.Title, t.Content, t.WordCount, t.Difficulty, questions, t.Active, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return assessment.Text{}, mapWriteError(err, "text")
	}
	return t, nil
}

func (s *Store) UpdateText(ctx context.Context, t assessment.Text) (assessment.Text, error) {
	existing, err := s.GetText(ctx, t.ID)
	if err != nil {
		return assessment.Text{}, err
	}

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	questions, err := marshalQuestions(t.Questions)
	if err != nil {
		return assessment.Text{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE assessment_texts
		SET title = $2, content = $3, word_count = $4, difficulty = $5, questions = $6,
			active = $7, updated_at = $8
		WHERE id = $1
	`, t.ID, t.Title, t.Content, t.WordCount, t.Difficulty, questions, t.Active, t.UpdatedAt)
	if err != nil {
		return assessment.Text{}, mapWriteError(err, "text")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return assessment.Text{}, fmt.Errorf("text %s: %w", t.ID, storage.ErrNotFound)
	}
	return t, nil
}

func (s *Store) GetText(ctx context.Context, id string) (assessment.Text, error) {
	var row textRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+textColumns+`
		FROM assessment_texts
		WHERE id = $1
	`, id)
	if err != nil {
		return assessment.Text{}, mapReadError(err, "text "+id)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTexts(ctx context.Context, onlyActive bool) ([]assessment.Text, error) {
	query := `
		SELECT ` + textColumns + `
		FROM assessment_texts`
	if onlyActive {
		query += " WHERE active"
	}
	query += " ORDER BY created_at, id"

	var rows []textRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	result := make([]assessment.Text, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteText(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM assessment_texts WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("text %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateAssessmentSession(ctx context.Context, sess assessment.Session) (assessment.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assessment_sessions (id, user_id, text_id, started_at, completed)
		VALUES ($1, $2, $3, $4, $5)
	`, sess.ID, sess.UserID, sess.TextID, sess.StartedAt, sess.Completed)
	if err != nil {
		return assessment.Session{}, mapWriteError(err, "assessment session")
	}
	return sess, nil
}

func (s *Store) GetAssessmentSession(ctx context.Context, id string) (assessment.Session, error) {
	var sess assessment.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, text_id, started_at, completed
		FROM assessment_sessions
		WHERE id = $1
	`, id).Scan(&sess.ID, &sess.UserID, &sess.TextID, &sess.StartedAt, &sess.Completed)
	if err != nil {
		return assessment.Session{}, mapReadError(err, "assessment session "+id)
	}
	return sess, nil
}

func (s *Store) CompleteAssessmentSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE assessment_sessions SET completed = TRUE
		WHERE id = $1 AND NOT completed
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, getErr := s.GetAssessmentSession(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("assessment session %s: %w", id, storage.ErrConflict)
	}
	return nil
}

type resultRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	TextID        string    `db:"text_id"`
	SessionID     string    `db:"session_id"`
	WPM           int       `db:"wpm"`
	Comprehension float64   `db:"comprehension"`
	Score         float64   `db:"score"`
	DurationMS    int64     `db:"duration_ms"`
	Correct       int       `db:"correct"`
	Total         int       `db:"total"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r resultRow) toDomain() assessment.Result {
	return assessment.Result(r)
}

const resultColumns = `id, user_id, text_id, session_id, wpm, comprehension, score, duration_ms,
	correct, total, created_at`

func (s *Store) CreateResult(ctx context.Context, r assessment.Result) (assessment.Result, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assessment_results (id, user_id, text_id, session_id, wpm, comprehension, score,
			duration_ms, correct, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.UserID, r.TextID, r.SessionID, r.WPM, r.Comprehension, r.Score,
		r.DurationMS, r.Correct, r.Total, r.CreatedAt)
	if err != nil {
		return assessment.Result{}, mapWriteError(err, "result")
	}
	return r, nil
}

func (s *Store) GetResult(ctx context.Context, id string) (assessment.Result, error) {
	var row resultRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+resultColumns+`
		FROM assessment_results
		WHERE id = $1
	`, id)
	if err != nil {
		return assessment.Result{}, mapReadError(err, "result "+id)
	}
	return row.toDomain(), nil
}

func (s *Store) ListResultsByUser(ctx context.Context, userID string, offset, limit int) ([]assessment.Result, error) {
	var rows []resultRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+resultColumns+`
		FROM assessment_results
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`, userID, offset, limit)
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
	query := `
		SELECT user_id, MAX(wpm)::float8 AS value
		FROM assessment_results`
	args := []interface{}{}
	if !since.IsZero() {
		args = append(args, since.UTC())
		query += " WHERE created_at >= $1"
	}
	query += `
		GROUP BY user_id
		ORDER BY value DESC, user_id`

	return s.queryTotals(ctx, query, args...)
}

// --- SubscriptionStore ------------------------------------------------------

type limitsRow struct {
	Tier                string    `db:"tier"`
	AssessmentsPerMonth int       `db:"assessments_per_month"`
	SubmissionsPerDay   int       `db:"submissions_per_day"`
	CanCreateBooks      bool      `db:"can_create_books"`
	LiveLeaderboard     bool      `db:"live_leaderboard"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func (r limitsRow) toDomain() subscription.Limits {
	return subscription.Limits(r)
}

func (s *Store) GetLimits(ctx context.Context, tier string) (subscription.Limits, error) {
	var row limitsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT tier, assessments_per_month, submissions_per_day, can_create_books, live_leaderboard, updated_at
		FROM subscription_limits
		WHERE tier = $1
	`, tier)
	if err != nil {
		return subscription.Limits{}, mapReadError(err, "limits "+tier)
	}
	return row.toDomain(), nil
}

func (s *Store) SetLimits(ctx context.Context, limits subscription.Limits) (subscription.Limits, error) {
	limits.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_limits (tier, assessments_per_month, submissions_per_day,
			can_create_books, live_leaderboard, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tier) DO UPDATE SET
			assessments_per_month = EXCLUDED.assessments_per_month,
			submissions_per_day = EXCLUDED.submissions_per_day,
			can_create_books = EXCLUDED.can_create_books,
			live_leaderboard = EXCLUDED.live_leaderboard,
			updated_at = EXCLUDED.updated_at
	`, limits.Tier, limits.AssessmentsPerMonth, limits.SubmissionsPerDay,
		limits.CanCreateBooks, limits.LiveLeaderboard, limits.UpdatedAt)
	if err != nil {
		return subscription.Limits{}, err
	}
	return limits, nil
}

func (s *Store) ListLimits(ctx context.Context) ([]subscription.Limits, error) {
	var rows []limitsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT tier, assessments_per_month, submissions_per_day, can_create_books, live_leaderboard, updated_at
		FROM subscription_limits
		ORDER BY tier
	`)
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
	UserID           string    `db:"user_id"`
	Month            string    `db:"month"`
	AssessmentsTaken int       `db:"assessments_taken"`
	SubmissionsCount int       `db:"submissions_count"`
	PagesRead        int       `db:"pages_read"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r usageRow) toDomain() subscription.Usage {
	return subscription.Usage(r)
}

func (s *Store) GetUsage(ctx context.Context, userID, month string) (subscription.Usage, error) {
	var row usageRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, month, assessments_taken, submissions_count, pages_read, updated_at
		FROM user_monthly_usage
		WHERE user_id = $1 AND month = $2
	`, userID, month)
	if err != nil {
		return subscription.Usage{}, mapReadError(err, "usage")
	}
	return row.toDomain(), nil
}

func (s *Store) IncrementUsage(ctx context.Context, userID, month string, assessments, submissions, pages int) (subscription.Usage, error) {
	var row usageRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO user_monthly_usage (user_id, month, assessments_taken, submissions_count, pages_read, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, month) DO UPDATE SET
			assessments_taken = user_monthly_usage.assessments_taken + EXCLUDED.assessments_taken,
			submissions_count = user_monthly_usage.submissions_count + EXCLUDED.submissions_count,
			pages_read = user_monthly_usage.pages_read + EXCLUDED.pages_read,
			updated_at = EXCLUDED.updated_at
		RETURNING user_id, month, assessments_taken, submissions_count, pages_read, updated_at
	`, userID, month, assessments, submissions, pages, time.Now().UTC())
	if err != nil {
		return subscription.Usage{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListUsageByMonth(ctx context.Context, month string) ([]subscription.Usage, error) {
	var rows []usageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, month, assessments_taken, submissions_count, pages_read, updated_at
		FROM user_monthly_usage
		WHERE month = $1
		ORDER BY user_id
	`, month)
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
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_monthly_usage WHERE month < $1
	`, month)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// --- FlagStore --------------------------------------------------------------

type flagRow struct {
	Key         string    `db:"key"`
	Description string    `db:"description"`
	Enabled     bool      `db:"enabled"`
	MinTier     string    `db:"min_tier"`
	AdminOnly   bool      `db:"admin_only"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r flagRow) toDomain() flag.Flag {
	return flag.Flag(r)
}

func (s *Store) UpsertFlag(ctx context.Context, f flag.Flag) (flag.Flag, error) {
	f.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feature_flags (key, description, enabled, min_tier, admin_only, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			description = EXCLUDED.description,
			enabled = EXCLUDED.enabled,
			min_tier = EXCLUDED.min_tier,
			admin_only = EXCLUDED.admin_only,
			updated_at = EXCLUDED.updated_at
	`, f.Key, f.Description, f.Enabled, f.MinTier, f.AdminOnly, f.UpdatedAt)
	if err != nil {
		return flag.Flag{}, err
	}
	return f, nil
}

func (s *Store) GetFlag(ctx context.Context, key string) (flag.Flag, error) {
	var row flagRow
	err := s.db.GetContext(ctx, &row, `
		SELECT key, description, enabled, min_tier, admin_only, updated_at
		FROM feature_flags
		WHERE key = $1
	`, key)
	if err != nil {
		return flag.Flag{}, mapReadError(err, "flag "+key)
	}
	return row.toDomain(), nil
}

func (s *Store) ListFlags(ctx context.Context) ([]flag.Flag, error) {
	var rows []flagRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT key, description, enabled, min_tier, admin_only, updated_at
		FROM feature_flags
		ORDER BY key
	`)
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
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM feature_flags WHERE key = $1
	`, key)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("flag %s: %w", key, storage.ErrNotFound)
	}
	return nil
}

// --- helpers ----------------------------------------------------------------

func (s *Store) queryTotals(ctx context.Context, query string, args ...interface{}) ([]storage.UserTotal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []storage.UserTotal
	for rows.Next() {
		var t storage.UserTotal
		if err := rows.Scan(&t.UserID, &t.Value); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
