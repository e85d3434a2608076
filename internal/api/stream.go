package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleEvents serves the session event stream over SSE with event-ID replay
// and keepalive pings.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.orch.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	// Parse Last-Event-ID header or query param for replay.
	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Configure client retry behavior.
	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", h.cfg.SSE.RetryDelay.Milliseconds())); err != nil {
		h.logger.Warn("failed to write SSE retry header", "error", err, "session_id", sessionID)
		return
	}
	flusher.Flush()

	events, cancel := h.orch.Hub().Subscribe(sessionID, lastEventID)
	defer cancel()

	connected := fmt.Sprintf(`{"status":"connected","session_id":"%s","state":"%s"}`, sess.ID, sess.State())
	if err := writeSSE(w, "connected", connected); err != nil {
		h.logger.Warn("failed to write SSE connected event", "error", err, "session_id", sessionID)
		return
	}
	flusher.Flush()

	h.logger.Info("SSE stream connected",
		"session_id", sessionID, "last_event_id", lastEventID)

	keepalive := time.NewTicker(h.cfg.SSE.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE stream disconnected", "session_id", sessionID)
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("failed to marshal event", "error", err, "session_id", sessionID)
				continue
			}
			if err := writeSSEWithID(w, ev.ID, string(ev.Type), string(data)); err != nil {
				h.logger.Warn("failed to write SSE event", "error", err, "session_id", sessionID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				h.logger.Warn("failed to write SSE keepalive ping", "error", err, "session_id", sessionID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
