package httpapi

import (
	"net/http"
)

func (h *handler) listTiers(w http.ResponseWriter, r *http.Request) {
	limits, err := h.app.Subscriptions.ListLimits(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]limitsView, len(limits))
	for i, l := range limits {
		views[i] = toLimitsView(l)
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"tiers": views})
}

type subscriptionResponse struct {
	Tier   string     `json:"tier"`
	Limits limitsView `json:"limits"`
	Usage  usageView  `json:"usage"`
}

func (h *handler) subscription(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	overview, err := h.app.Subscriptions.Overview(r.Context(), p.ID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	usage := toUsageView(overview.Usage)
	usage.UserID = ""
	h.respond(w, http.StatusOK, subscriptionResponse{
		Tier:   overview.Tier,
		Limits: toLimitsView(overview.Limits),
		Usage:  usage,
	})
}

type upgradeRequest struct {
	Tier string `json:"tier"`
}

func (h *handler) upgradeTier(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req upgradeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	updated, err := h.app.Subscriptions.ChangeTier(r.Context(), p.ID, req.Tier)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"tier":   updated.Tier,
		"limits": toLimitsView(h.app.Subscriptions.LimitsFor(r.Context(), updated.Tier)),
	})
}
