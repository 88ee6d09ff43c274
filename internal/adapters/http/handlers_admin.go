package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/storefront-identity/internal/application"
)

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, application.ToProfileResponse(profile))
}

func (h *Handler) toggleAdmin(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.ToggleAdmin(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		writeMappedError(r.Context(), w, "toggle_admin", err)
		return
	}
	writeSuccess(w, http.StatusOK, application.ToProfileResponse(profile))
}

// deleteUser answers 200 for every completed outcome, including a repeat
// delete of an already removed user.
func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.DeleteUser(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		writeMappedError(r.Context(), w, "delete_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, application.ToDeletionResponse(receipt))
}
