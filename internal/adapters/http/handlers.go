package http

import (
	"net/http"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

// readyz fails while the identity backend is in its failed-to-initialize state.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	status := h.service.IdentityStatus()
	if !status.Ready {
		logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "IDENTITY_UNAVAILABLE", status.Reason, nil)
		writeError(w, http.StatusServiceUnavailable, "IDENTITY_UNAVAILABLE", status.Reason)
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"keys": h.keys.PublicJWKs()})
}
