// Package httpapi exposes the application services as the ReadSpeed
// REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/readspeed/backend/internal/app"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/storage"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/httputil"
	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/metrics"
	"github.com/readspeed/backend/internal/middleware"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Config tunes the handler's middleware and audit log.
type Config struct {
	ServiceName    string
	AllowedOrigins []string

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int

	AuditMax  int
	AuditPath string

	// UploadsDir, when set, is served under /uploads/ for the local
	// object store.
	UploadsDir string
}

// handler bundles the HTTP endpoints over the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
	live  *liveFeed
	log   *logging.Logger
}

// NewHandler returns the API router with its middleware chain applied.
// mx may be nil to skip request metrics.
func NewHandler(application *app.Application, cfg Config, mx *metrics.Metrics, log *logging.Logger) (http.Handler, error) {
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "readspeed"
	}

	sink, err := newFileAuditSink(cfg.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}

	h := &handler{
		app:   application,
		audit: newAuditLog(cfg.AuditMax, sink),
		live:  newLiveFeed(application.Leaderboard, mx, log.WithField("component", "live")),
		log:   log,
	}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))
	if mx != nil {
		r.Use(middleware.MetricsMiddleware(cfg.ServiceName, mx))
	}
	r.Use(middleware.NewCORSMiddleware(cfg.AllowedOrigins).Handler)
	if cfg.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
		r.Use(limiter.Handler)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.error(w, r, apperrors.NotFound("route"))
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if cfg.UploadsDir != "" {
		r.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadsDir))))
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public surface.
	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/books", h.listBooks).Methods(http.MethodGet)
	api.HandleFunc("/books/{id}", h.getBook).Methods(http.MethodGet)
	api.HandleFunc("/tiers", h.listTiers).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", h.leaderboardTop).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{username}", h.publicProfile).Methods(http.MethodGet)

	// Authenticated surface.
	authMW := middleware.NewAuthMiddleware(application.Profiles, log)
	authed := api.NewRoute().Subrouter()
	authed.Use(authMW.Handler)
	authed.Use(h.auditMiddleware)

	authed.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	authed.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	authed.HandleFunc("/profile", h.getProfile).Methods(http.MethodGet)
	authed.HandleFunc("/profile", h.updateProfile).Methods(http.MethodPatch)
	authed.HandleFunc("/profile/avatar", h.uploadAvatar).Methods(http.MethodPost)
	authed.HandleFunc("/books", h.createBook).Methods(http.MethodPost)
	authed.HandleFunc("/books/{id}", h.updateBook).Methods(http.MethodPatch)
	authed.HandleFunc("/books/{id}", h.deleteBook).Methods(http.MethodDelete)
	authed.HandleFunc("/books/{id}/cover", h.uploadCover).Methods(http.MethodPost)
	authed.HandleFunc("/submissions", h.createSubmission).Methods(http.MethodPost)
	authed.HandleFunc("/submissions", h.listSubmissions).Methods(http.MethodGet)
	authed.HandleFunc("/submissions/stats", h.submissionStats).Methods(http.MethodGet)
	authed.HandleFunc("/submissions/{id}", h.deleteSubmission).Methods(http.MethodDelete)
	authed.HandleFunc("/assessments/texts", h.listTexts).Methods(http.MethodGet)
	authed.HandleFunc("/assessments/start", h.startAssessment).Methods(http.MethodPost)
	authed.HandleFunc("/assessments/{id}/submit", h.submitAssessment).Methods(http.MethodPost)
	authed.HandleFunc("/assessments/results", h.listResults).Methods(http.MethodGet)
	authed.HandleFunc("/assessments/results/{id}", h.getResult).Methods(http.MethodGet)
	authed.HandleFunc("/assessments/progress", h.progress).Methods(http.MethodGet)
	authed.HandleFunc("/subscription", h.subscription).Methods(http.MethodGet)
	authed.HandleFunc("/subscription/upgrade", h.upgradeTier).Methods(http.MethodPost)
	authed.HandleFunc("/leaderboard/me", h.leaderboardRank).Methods(http.MethodGet)
	authed.HandleFunc("/leaderboard/live", h.liveLeaderboard).Methods(http.MethodGet)
	authed.HandleFunc("/flags", h.listFlags).Methods(http.MethodGet)

	// Admin surface.
	admin := authed.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)

	admin.HandleFunc("/users", h.adminListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", h.adminUpdateUser).Methods(http.MethodPatch)
	admin.HandleFunc("/texts", h.adminListTexts).Methods(http.MethodGet)
	admin.HandleFunc("/texts", h.adminCreateText).Methods(http.MethodPost)
	admin.HandleFunc("/texts/{id}", h.adminGetText).Methods(http.MethodGet)
	admin.HandleFunc("/texts/{id}", h.adminUpdateText).Methods(http.MethodPatch)
	admin.HandleFunc("/texts/{id}", h.adminDeleteText).Methods(http.MethodDelete)
	admin.HandleFunc("/limits", h.adminListLimits).Methods(http.MethodGet)
	admin.HandleFunc("/limits/{tier}", h.adminSetLimits).Methods(http.MethodPut)
	admin.HandleFunc("/flags", h.adminListFlags).Methods(http.MethodGet)
	admin.HandleFunc("/flags/{key}", h.adminGetFlag).Methods(http.MethodGet)
	admin.HandleFunc("/flags/{key}", h.adminSetFlag).Methods(http.MethodPut)
	admin.HandleFunc("/flags/{key}", h.adminDeleteFlag).Methods(http.MethodDelete)
	admin.HandleFunc("/audit", h.adminAudit).Methods(http.MethodGet)
	admin.HandleFunc("/system", h.adminSystem).Methods(http.MethodGet)
	admin.HandleFunc("/usage", h.adminUsage).Methods(http.MethodGet)
	admin.HandleFunc("/leaderboard/rebuild", h.adminRebuildLeaderboard).Methods(http.MethodPost)

	return r, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.app.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	h.respond(w, code, map[string]string{"status": status})
}

// currentProfile loads the authenticated caller's profile.
func (h *handler) currentProfile(r *http.Request) (profile.Profile, error) {
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		return profile.Profile{}, apperrors.Unauthorized("authentication required")
	}
	p, err := h.app.Profiles.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return profile.Profile{}, apperrors.Unauthorized("account no longer exists")
		}
		return profile.Profile{}, err
	}
	return p, nil
}

func (h *handler) respond(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSONResponse(w, status, data)
}

// error maps service and storage errors onto the JSON error envelope.
func (h *handler) error(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr := apperrors.GetServiceError(err); svcErr != nil {
		if svcErr.HTTPStatus >= 500 {
			h.log.WithContext(r.Context()).WithError(err).Error("request failed")
		}
		httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, svcErr.Code, svcErr.Message, svcErr.Details)
		return
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, apperrors.CodeNotFound, "resource not found", nil)
	case errors.Is(err, storage.ErrConflict):
		httputil.WriteErrorResponse(w, r, http.StatusConflict, apperrors.CodeConflict, "resource already exists", nil)
	default:
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, apperrors.CodeInternal, "internal server error", nil)
	}
}

// decode parses a bounded JSON body into target.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, target interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.PayloadTooLarge(maxBodyBytes)
		}
		return apperrors.InvalidInput("malformed JSON body")
	}
	return nil
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, apperrors.InvalidFormat(name, "must be YYYY-MM-DD")
	}
	return t, nil
}
