package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/readspeed/backend/internal/app/services/leaderboard"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/metrics"
)

// liveLeaderboardFlag gates the websocket feed; the seed tool creates it
// enabled.
const liveLeaderboardFlag = "live_leaderboard"

const (
	liveRefreshInterval = 5 * time.Second
	liveWriteTimeout    = 10 * time.Second
	liveTopLimit        = 25
)

// liveFeed pushes leaderboard snapshots to websocket clients. Each
// connection polls independently; there is no shared hub.
type liveFeed struct {
	board    *leaderboard.Service
	mx       *metrics.Metrics
	upgrader websocket.Upgrader
	log      *logging.Logger
}

func newLiveFeed(board *leaderboard.Service, mx *metrics.Metrics, log *logging.Logger) *liveFeed {
	return &liveFeed{
		board: board,
		mx:    mx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

type liveSnapshot struct {
	Board   string      `json:"board"`
	Period  string      `json:"period"`
	At      time.Time   `json:"at"`
	Entries []entryView `json:"entries"`
}

// serve upgrades the connection and streams snapshots until the client
// disconnects.
func (f *liveFeed) serve(w http.ResponseWriter, r *http.Request, board, period string) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		f.log.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if f.mx != nil {
		f.mx.AddLiveClient()
		defer f.mx.RemoveLiveClient()
	}

	// Read pump: detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	ticker := time.NewTicker(liveRefreshInterval)
	defer ticker.Stop()

	for {
		entries, err := f.board.Top(ctx, board, period, liveTopLimit)
		if err != nil {
			f.log.WithContext(ctx).WithError(err).Warn("live snapshot failed")
		} else {
			snap := liveSnapshot{
				Board:   board,
				Period:  period,
				At:      time.Now().UTC(),
				Entries: toEntryViews(entries),
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}

		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
		}
	}
}

// liveLeaderboard gates the feed on the feature flag and the caller's
// tier, then hands off to the websocket loop.
func (h *handler) liveLeaderboard(w http.ResponseWriter, r *http.Request) {
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

	if !h.app.Flags.IsEnabled(r.Context(), liveLeaderboardFlag, p) {
		h.error(w, r, apperrors.Forbidden("live leaderboard is not available"))
		return
	}
	if !p.IsAdmin() {
		limits := h.app.Subscriptions.LimitsFor(r.Context(), p.Tier)
		if !limits.LiveLeaderboard {
			h.error(w, r, apperrors.Forbidden("your tier cannot stream the leaderboard").WithDetails("tier", p.Tier))
			return
		}
	}

	h.live.serve(w, r, board, period)
}
