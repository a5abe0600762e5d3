package httpapi

import (
	"net/http"

	"github.com/readspeed/backend/internal/app/services/profiles"
)

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toProfileView(p))
}

type updateProfileRequest struct {
	Username        *string   `json:"username"`
	DisplayName     *string   `json:"display_name"`
	Bio             *string   `json:"bio"`
	ReadingGoal     *int      `json:"reading_goal"`
	PreferredGenres *[]string `json:"preferred_genres"`
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req updateProfileRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	updated, err := h.app.Profiles.Update(r.Context(), p.ID, profiles.UpdateInput{
		Username:        req.Username,
		DisplayName:     req.DisplayName,
		Bio:             req.Bio,
		ReadingGoal:     req.ReadingGoal,
		PreferredGenres: req.PreferredGenres,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toProfileView(updated))
}

// uploadAvatar accepts the raw image bytes; the content type selects the
// stored extension.
func (h *handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	updated, err := h.app.Uploads.StoreAvatar(r.Context(), p, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toProfileView(updated))
}

func (h *handler) publicProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.GetByUsername(r.Context(), pathVar(r, "username"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toPublicProfileView(p))
}
