package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/services/assessments"
	"github.com/readspeed/backend/internal/app/services/flags"
	apperrors "github.com/readspeed/backend/internal/errors"
)

type adminUserView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Tier        string    `json:"tier"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAdminUserView(p profile.Profile) adminUserView {
	return adminUserView{
		ID:          p.ID,
		Email:       p.Email,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		Tier:        p.Tier,
		CreatedAt:   p.CreatedAt,
	}
}

func (h *handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	per := queryInt(r, "per_page", 50)
	users, total, err := h.app.Profiles.List(r.Context(), page, per)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]adminUserView, len(users))
	for i, u := range users {
		views[i] = toAdminUserView(u)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"users": views,
		"total": total,
		"page":  page,
	})
}

type adminUpdateUserRequest struct {
	Role *string `json:"role"`
	Tier *string `json:"tier"`
}

// adminUpdateUser changes a user's role or tier; both edits are
// independent and either may be omitted.
func (h *handler) adminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateUserRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}
	if req.Role == nil && req.Tier == nil {
		h.error(w, r, apperrors.InvalidInput("nothing to update"))
		return
	}

	id := pathVar(r, "id")
	var updated profile.Profile
	var err error
	if req.Role != nil {
		updated, err = h.app.Profiles.SetRole(r.Context(), id, *req.Role)
		if err != nil {
			h.error(w, r, err)
			return
		}
	}
	if req.Tier != nil {
		updated, err = h.app.Subscriptions.ChangeTier(r.Context(), id, *req.Tier)
		if err != nil {
			h.error(w, r, err)
			return
		}
	}
	h.respond(w, http.StatusOK, toAdminUserView(updated))
}

func (h *handler) adminListTexts(w http.ResponseWriter, r *http.Request) {
	texts, err := h.app.Assessments.ListTexts(r.Context(), r.URL.Query().Get("difficulty"), false)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]adminTextView, len(texts))
	for i, t := range texts {
		views[i] = toAdminTextView(t)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"texts": views})
}

type textRequest struct {
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Difficulty string          `json:"difficulty"`
	Questions  []adminQuestion `json:"questions"`
	Active     bool            `json:"active"`
}

func domainQuestions(in []adminQuestion) []assessment.Question {
	out := make([]assessment.Question, len(in))
	for i, q := range in {
		out[i] = assessment.Question{Prompt: q.Prompt, Options: q.Options, Answer: q.Answer}
	}
	return out
}

func (h *handler) adminCreateText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	created, err := h.app.Assessments.CreateText(r.Context(), assessments.TextInput{
		Title:      req.Title,
		Content:    req.Content,
		Difficulty: req.Difficulty,
		Questions:  domainQuestions(req.Questions),
		Active:     req.Active,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toAdminTextView(created))
}

func (h *handler) adminGetText(w http.ResponseWriter, r *http.Request) {
	t, err := h.app.Assessments.GetText(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toAdminTextView(t))
}

type textUpdateRequest struct {
	Title      *string          `json:"title"`
	Content    *string          `json:"content"`
	Difficulty *string          `json:"difficulty"`
	Questions  *[]adminQuestion `json:"questions"`
	Active     *bool            `json:"active"`
}

func (h *handler) adminUpdateText(w http.ResponseWriter, r *http.Request) {
	var req textUpdateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	update := assessments.TextUpdate{
		Title:      req.Title,
		Content:    req.Content,
		Difficulty: req.Difficulty,
		Active:     req.Active,
	}
	if req.Questions != nil {
		questions := domainQuestions(*req.Questions)
		update.Questions = &questions
	}

	updated, err := h.app.Assessments.UpdateText(r.Context(), pathVar(r, "id"), update)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toAdminTextView(updated))
}

func (h *handler) adminDeleteText(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Assessments.DeleteText(r.Context(), pathVar(r, "id")); err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handler) adminListLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.app.Subscriptions.ListLimits(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]limitsView, len(limits))
	for i, l := range limits {
		views[i] = toLimitsView(l)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"limits": views})
}

type setLimitsRequest struct {
	AssessmentsPerMonth int  `json:"assessments_per_month"`
	SubmissionsPerDay   int  `json:"submissions_per_day"`
	CanCreateBooks      bool `json:"can_create_books"`
	LiveLeaderboard     bool `json:"live_leaderboard"`
}

func (h *handler) adminSetLimits(w http.ResponseWriter, r *http.Request) {
	var req setLimitsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	saved, err := h.app.Subscriptions.SetLimits(r.Context(), subscription.Limits{
		Tier:                pathVar(r, "tier"),
		AssessmentsPerMonth: req.AssessmentsPerMonth,
		SubmissionsPerDay:   req.SubmissionsPerDay,
		CanCreateBooks:      req.CanCreateBooks,
		LiveLeaderboard:     req.LiveLeaderboard,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toLimitsView(saved))
}

func (h *handler) adminListFlags(w http.ResponseWriter, r *http.Request) {
	all, err := h.app.Flags.All(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]flagView, len(all))
	for i, f := range all {
		views[i] = toFlagView(f)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"flags": views})
}

func (h *handler) adminGetFlag(w http.ResponseWriter, r *http.Request) {
	f, err := h.app.Flags.Get(r.Context(), pathVar(r, "key"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toFlagView(f))
}

type setFlagRequest struct {
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	MinTier     string `json:"min_tier"`
	AdminOnly   bool   `json:"admin_only"`
}

func (h *handler) adminSetFlag(w http.ResponseWriter, r *http.Request) {
	var req setFlagRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	saved, err := h.app.Flags.Set(r.Context(), pathVar(r, "key"), flags.SetInput{
		Description: req.Description,
		Enabled:     req.Enabled,
		MinTier:     req.MinTier,
		AdminOnly:   req.AdminOnly,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toFlagView(saved))
}

func (h *handler) adminDeleteFlag(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Flags.Delete(r.Context(), pathVar(r, "key")); err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	entries := h.audit.listLimit(queryInt(r, "limit", 100))
	h.respond(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

type systemResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	GoVersion     string  `json:"go_version"`
	NumGoroutine  int     `json:"num_goroutine"`
	Hostname      string  `json:"hostname,omitempty"`
	Platform      string  `json:"platform,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

// adminSystem reports process and host health. Host probes are
// best-effort; a failed probe leaves its field zero.
func (h *handler) adminSystem(w http.ResponseWriter, r *http.Request) {
	resp := systemResponse{
		Status:        "ok",
		UptimeSeconds: h.app.Uptime().Seconds(),
		GoVersion:     runtime.Version(),
		NumGoroutine:  runtime.NumGoroutine(),
	}
	if err := h.app.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
	}

	if info, err := host.Info(); err == nil {
		resp.Hostname = info.Hostname
		resp.Platform = info.Platform
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPercent = vm.UsedPercent
		resp.MemoryUsedMB = vm.Used / (1 << 20)
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *handler) adminUsage(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		month = subscription.MonthKey(time.Now())
	} else if _, err := time.Parse("2006-01", month); err != nil {
		h.error(w, r, apperrors.InvalidFormat("month", "must be YYYY-MM"))
		return
	}

	usage, err := h.app.Subscriptions.ListUsage(r.Context(), month)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]usageView, len(usage))
	for i, u := range usage {
		views[i] = toUsageView(u)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"month": month, "usage": views})
}

func (h *handler) adminRebuildLeaderboard(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Leaderboard.Rebuild(r.Context()); err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}
