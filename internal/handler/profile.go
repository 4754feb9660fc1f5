package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/lunchbox/internal/service"
)

// ProfileHandler serves the Profile Directory.
type ProfileHandler struct {
	auth     *service.AuthService
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(authSvc *service.AuthService, profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{auth: authSvc, profiles: profiles, logger: logger}
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/me
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Me(r.Context(), viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdateMe edits username and/or name.
//
// HTTP: PATCH /api/me
// BODY: {"username":"...","name":"..."}
func (h *ProfileHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd service.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}
	me := viewerID(r)
	// make sure the profile exists before patching it
	if _, err := h.auth.Me(r.Context(), me); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.profiles.Update(r.Context(), me, me, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGet returns anyone's public profile.
//
// HTTP: GET /api/profiles/{id}
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
