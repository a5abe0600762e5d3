package httpapi

import (
	"net/http"
	"time"

	"github.com/readspeed/backend/internal/app/services/profiles"
	"github.com/readspeed/backend/internal/middleware"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	created, err := h.app.Profiles.Register(r.Context(), profiles.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toProfileView(created))
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Profile   profileView `json:"profile"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	login, err := h.app.Profiles.Authenticate(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, loginResponse{
		Token:     login.Token,
		ExpiresAt: login.ExpiresAt,
		Profile:   toProfileView(login.Profile),
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Profiles.Logout(r.Context(), middleware.GetSessionID(r.Context())); err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toProfileView(p))
}
