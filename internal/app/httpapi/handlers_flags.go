package httpapi

import "net/http"

type evaluationView struct {
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// listFlags evaluates every feature flag for the caller.
func (h *handler) listFlags(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	evals, err := h.app.Flags.Evaluate(r.Context(), p)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]evaluationView, len(evals))
	for i, e := range evals {
		views[i] = evaluationView{Key: e.Key, Description: e.Description, Enabled: e.Enabled}
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"flags": views})
}
