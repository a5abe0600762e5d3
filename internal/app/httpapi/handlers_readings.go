package httpapi

import (
	"net/http"
	"time"

	"github.com/readspeed/backend/internal/app/services/readings"
	apperrors "github.com/readspeed/backend/internal/errors"
)

type createSubmissionRequest struct {
	BookID string `json:"book_id"`
	Pages  int    `json:"pages"`
	ReadOn string `json:"read_on"`
}

func (h *handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req createSubmissionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	var readOn time.Time
	if req.ReadOn != "" {
		readOn, err = time.Parse("2006-01-02", req.ReadOn)
		if err != nil {
			h.error(w, r, apperrors.InvalidFormat("read_on", "must be YYYY-MM-DD"))
			return
		}
	}

	created, err := h.app.Readings.Submit(r.Context(), p, readings.SubmitInput{
		BookID: req.BookID,
		Pages:  req.Pages,
		ReadOn: readOn,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toSubmissionView(created))
}

func (h *handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	from, err := queryDate(r, "from")
	if err != nil {
		h.error(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.error(w, r, err)
		return
	}

	list, err := h.app.Readings.ListByUser(r.Context(), p.ID, from, to)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]submissionView, len(list))
	for i, s := range list {
		views[i] = toSubmissionView(s)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"submissions": views})
}

type statsResponse struct {
	TotalPages       int     `json:"total_pages"`
	TotalSubmissions int     `json:"total_submissions"`
	BooksRead        int     `json:"books_read"`
	PagesToday       int     `json:"pages_today"`
	PagesThisWeek    int     `json:"pages_this_week"`
	PagesThisMonth   int     `json:"pages_this_month"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	ReadingGoal      int     `json:"reading_goal"`
	GoalProgress     float64 `json:"goal_progress"`
}

func (h *handler) submissionStats(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	summary, err := h.app.Readings.Stats(r.Context(), p)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, statsResponse{
		TotalPages:       summary.TotalPages,
		TotalSubmissions: summary.TotalSubmissions,
		BooksRead:        summary.BooksRead,
		PagesToday:       summary.PagesToday,
		PagesThisWeek:    summary.PagesThisWeek,
		PagesThisMonth:   summary.PagesThisMonth,
		CurrentStreak:    summary.CurrentStreak,
		LongestStreak:    summary.LongestStreak,
		ReadingGoal:      summary.ReadingGoal,
		GoalProgress:     summary.GoalProgress,
	})
}

func (h *handler) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	if err := h.app.Readings.Delete(r.Context(), p, pathVar(r, "id")); err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}
