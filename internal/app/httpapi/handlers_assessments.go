package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	apperrors "github.com/readspeed/backend/internal/errors"
)

func (h *handler) listTexts(w http.ResponseWriter, r *http.Request) {
	difficulty := r.URL.Query().Get("difficulty")
	if difficulty != "" && !assessment.ValidDifficulty(difficulty) {
		h.error(w, r, apperrors.InvalidFormat("difficulty", "must be easy, medium or hard"))
		return
	}

	texts, err := h.app.Assessments.ListTexts(r.Context(), difficulty, true)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]textView, len(texts))
	for i, t := range texts {
		views[i] = toTextView(t, false)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"texts": views})
}

type startAssessmentRequest struct {
	TextID string `json:"text_id"`
}

type startAssessmentResponse struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Text      textView  `json:"text"`
}

func (h *handler) startAssessment(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	// An empty body picks a random active text.
	var req startAssessmentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.error(w, r, apperrors.InvalidInput("malformed JSON body"))
		return
	}

	outcome, err := h.app.Assessments.Start(r.Context(), p, req.TextID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, startAssessmentResponse{
		SessionID: outcome.Session.ID,
		StartedAt: outcome.Session.StartedAt,
		Text:      toTextView(outcome.Text, true),
	})
}

type submitAssessmentRequest struct {
	Answers    []int `json:"answers"`
	DurationMS int64 `json:"duration_ms"`
}

type submitAssessmentResponse struct {
	Result resultView `json:"result"`
	Rating string     `json:"rating"`
	Model  string     `json:"model,omitempty"`
}

func (h *handler) submitAssessment(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req submitAssessmentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	outcome, err := h.app.Assessments.Submit(r.Context(), p, pathVar(r, "id"), req.Answers, req.DurationMS)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, submitAssessmentResponse{
		Result: toResultView(outcome.Result),
		Rating: outcome.Rating,
		Model:  outcome.Model,
	})
}

func (h *handler) listResults(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	page := queryInt(r, "page", 1)
	per := queryInt(r, "per_page", 20)
	results, err := h.app.Assessments.Results(r.Context(), p.ID, page, per)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]resultView, len(results))
	for i, res := range results {
		views[i] = toResultView(res)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"results": views, "page": page})
}

func (h *handler) getResult(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	res, err := h.app.Assessments.GetResult(r.Context(), p, pathVar(r, "id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toResultView(res))
}

type progressPointView struct {
	Date          time.Time `json:"date"`
	WPM           int       `json:"wpm"`
	Comprehension float64   `json:"comprehension"`
	Score         float64   `json:"score"`
}

func (h *handler) progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	points, err := h.app.Assessments.Progress(r.Context(), p.ID, queryInt(r, "limit", 30))
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]progressPointView, len(points))
	for i, pt := range points {
		views[i] = progressPointView{
			Date:          pt.CreatedAt,
			WPM:           pt.WPM,
			Comprehension: pt.Comprehension,
			Score:         pt.Score,
		}
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"progress": views})
}
