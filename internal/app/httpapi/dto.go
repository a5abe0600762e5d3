package httpapi

import (
	"time"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/flag"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/reading"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/services/leaderboard"
)

// profileView is the caller's own profile.
type profileView struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name"`
	Bio             string    `json:"bio,omitempty"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	Role            string    `json:"role"`
	Tier            string    `json:"tier"`
	ReadingGoal     int       `json:"reading_goal"`
	PreferredGenres []string  `json:"preferred_genres,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toProfileView(p profile.Profile) profileView {
	return profileView{
		ID:              p.ID,
		Email:           p.Email,
		Username:        p.Username,
		DisplayName:     p.DisplayName,
		Bio:             p.Bio,
		AvatarURL:       p.AvatarURL,
		Role:            p.Role,
		Tier:            p.Tier,
		ReadingGoal:     p.ReadingGoal,
		PreferredGenres: p.PreferredGenres,
		CreatedAt:       p.CreatedAt,
	}
}

// publicProfileView hides email and role.
type publicProfileView struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Tier        string    `json:"tier"`
	JoinedAt    time.Time `json:"joined_at"`
}

func toPublicProfileView(p profile.Profile) publicProfileView {
	return publicProfileView{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		AvatarURL:   p.AvatarURL,
		Tier:        p.Tier,
		JoinedAt:    p.CreatedAt,
	}
}

type bookView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	TotalPages  int       `json:"total_pages"`
	ISBN        string    `json:"isbn,omitempty"`
	CoverURL    string    `json:"cover_url,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBookView(b book.Book) bookView {
	return bookView{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Genre:       b.Genre,
		TotalPages:  b.TotalPages,
		ISBN:        b.ISBN,
		CoverURL:    b.CoverURL,
		CreatedBy:   b.CreatedBy,
		CreatedAt:   b.CreatedAt,
	}
}

func toBookViews(list []book.Book) []bookView {
	views := make([]bookView, len(list))
	for i, b := range list {
		views[i] = toBookView(b)
	}
	return views
}

type submissionView struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	PagesRead int       `json:"pages_read"`
	ReadOn    string    `json:"read_on"`
	CreatedAt time.Time `json:"created_at"`
}

func toSubmissionView(s reading.Submission) submissionView {
	return submissionView{
		ID:        s.ID,
		BookID:    s.BookID,
		PagesRead: s.PagesRead,
		ReadOn:    s.ReadOn.Format("2006-01-02"),
		CreatedAt: s.CreatedAt,
	}
}

// questionView carries a question without its answer index.
type questionView struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// textView is the reader-facing assessment text: no answers.
type textView struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Content    string         `json:"content,omitempty"`
	WordCount  int            `json:"word_count"`
	Difficulty string         `json:"difficulty"`
	Questions  []questionView `json:"questions,omitempty"`
}

// toTextView sanitizes a text for readers. Listings omit the content and
// questions; a started session includes both.
func toTextView(t assessment.Text, full bool) textView {
	v := textView{
		ID:         t.ID,
		Title:      t.Title,
		WordCount:  t.WordCount,
		Difficulty: t.Difficulty,
	}
	if full {
		v.Content = t.Content
		v.Questions = make([]questionView, len(t.Questions))
		for i, q := range t.Questions {
			v.Questions[i] = questionView{Prompt: q.Prompt, Options: q.Options}
		}
	}
	return v
}

// adminQuestion includes the answer index for the admin surface.
type adminQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

type adminTextView struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	WordCount  int             `json:"word_count"`
	Difficulty string          `json:"difficulty"`
	Questions  []adminQuestion `json:"questions"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toAdminTextView(t assessment.Text) adminTextView {
	questions := make([]adminQuestion, len(t.Questions))
	for i, q := range t.Questions {
		questions[i] = adminQuestion{Prompt: q.Prompt, Options: q.Options, Answer: q.Answer}
	}
	return adminTextView{
		ID:         t.ID,
		Title:      t.Title,
		Content:    t.Content,
		WordCount:  t.WordCount,
		Difficulty: t.Difficulty,
		Questions:  questions,
		Active:     t.Active,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

type resultView struct {
	ID            string    `json:"id"`
	TextID        string    `json:"text_id"`
	WPM           int       `json:"wpm"`
	Comprehension float64   `json:"comprehension"`
	Score         float64   `json:"score"`
	DurationMS    int64     `json:"duration_ms"`
	Correct       int       `json:"correct"`
	Total         int       `json:"total"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResultView(r assessment.Result) resultView {
	return resultView{
		ID:            r.ID,
		TextID:        r.TextID,
		WPM:           r.WPM,
		Comprehension: r.Comprehension,
		Score:         r.Score,
		DurationMS:    r.DurationMS,
		Correct:       r.Correct,
		Total:         r.Total,
		CreatedAt:     r.CreatedAt,
	}
}

type limitsView struct {
	Tier                string `json:"tier"`
	AssessmentsPerMonth int    `json:"assessments_per_month"`
	SubmissionsPerDay   int    `json:"submissions_per_day"`
	CanCreateBooks      bool   `json:"can_create_books"`
	LiveLeaderboard     bool   `json:"live_leaderboard"`
}

func toLimitsView(l subscription.Limits) limitsView {
	return limitsView{
		Tier:                l.Tier,
		AssessmentsPerMonth: l.AssessmentsPerMonth,
		SubmissionsPerDay:   l.SubmissionsPerDay,
		CanCreateBooks:      l.CanCreateBooks,
		LiveLeaderboard:     l.LiveLeaderboard,
	}
}

type usageView struct {
	UserID           string `json:"user_id,omitempty"`
	Month            string `json:"month"`
	AssessmentsTaken int    `json:"assessments_taken"`
	SubmissionsCount int    `json:"submissions_count"`
	PagesRead        int    `json:"pages_read"`
}

func toUsageView(u subscription.Usage) usageView {
	return usageView{
		UserID:           u.UserID,
		Month:            u.Month,
		AssessmentsTaken: u.AssessmentsTaken,
		SubmissionsCount: u.SubmissionsCount,
		PagesRead:        u.PagesRead,
	}
}

type flagView struct {
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	MinTier     string    `json:"min_tier,omitempty"`
	AdminOnly   bool      `json:"admin_only"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toFlagView(f flag.Flag) flagView {
	return flagView{
		Key:         f.Key,
		Description: f.Description,
		Enabled:     f.Enabled,
		MinTier:     f.MinTier,
		AdminOnly:   f.AdminOnly,
		UpdatedAt:   f.UpdatedAt,
	}
}

type entryView struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   string  `json:"avatar_url,omitempty"`
	Value       float64 `json:"value"`
}

func toEntryView(e leaderboard.Entry) entryView {
	return entryView{
		Rank:        e.Rank,
		UserID:      e.UserID,
		Username:    e.Username,
		DisplayName: e.DisplayName,
		AvatarURL:   e.AvatarURL,
		Value:       e.Value,
	}
}

func toEntryViews(entries []leaderboard.Entry) []entryView {
	views := make([]entryView, len(entries))
	for i, e := range entries {
		views[i] = toEntryView(e)
	}
	return views
}
