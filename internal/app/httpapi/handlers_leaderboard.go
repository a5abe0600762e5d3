package httpapi

import (
	"net/http"

	"github.com/readspeed/backend/internal/app/domain/leaderboard"
	apperrors "github.com/readspeed/backend/internal/errors"
)

func boardParams(r *http.Request) (board, period string, err error) {
	board = r.URL.Query().Get("board")
	if board == "" {
		board = leaderboard.BoardWPM
	}
	if !leaderboard.ValidBoard(board) {
		return "", "", apperrors.InvalidFormat("board", "must be wpm or pages")
	}
	period = r.URL.Query().Get("period")
	if period == "" {
		period = leaderboard.PeriodWeekly
	}
	if !leaderboard.ValidPeriod(period) {
		return "", "", apperrors.InvalidFormat("period", "must be weekly, monthly or alltime")
	}
	return board, period, nil
}

type leaderboardResponse struct {
	Board   string      `json:"board"`
	Period  string      `json:"period"`
	Entries []entryView `json:"entries"`
}

func (h *handler) leaderboardTop(w http.ResponseWriter, r *http.Request) {
	board, period, err := boardParams(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	entries, err := h.app.Leaderboard.Top(r.Context(), board, period, queryInt(r, "limit", 25))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, leaderboardResponse{
		Board:   board,
		Period:  period,
		Entries: toEntryViews(entries),
	})
}

func (h *handler) leaderboardRank(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	board, period, err := boardParams(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	entry, err := h.app.Leaderboard.Rank(r.Context(), board, period, p.ID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	if entry == nil {
		h.respond(w, http.StatusOK, map[string]interface{}{
			"board":  board,
			"period": period,
			"ranked": false,
		})
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"board":  board,
		"period": period,
		"ranked": true,
		"entry":  toEntryView(*entry),
	})
}
