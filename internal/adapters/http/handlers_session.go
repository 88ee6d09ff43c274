package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const streamKeepAlive = 25 * time.Second

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, sessionFromContext(r.Context()))
}

// streamSession pushes every session view as a server-sent event until the
// client disconnects or the session ends.
func (h *Handler) streamSession(w http.ResponseWriter, r *http.Request) {
	token, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeMissingBearerError(r.Context(), w, "stream_session")
		return
	}
	views, err := h.service.WatchSession(r.Context(), token)
	if err != nil {
		writeMappedError(r.Context(), w, "stream_session", err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logHTTPOperationError(r.Context(), "stream_session", http.StatusInternalServerError, "STREAM_UNSUPPORTED", "response does not support flushing", err)
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case view, ok := <-views:
			if !ok {
				return
			}
			payload, err := json.Marshal(view)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
