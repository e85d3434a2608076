package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const wsWriteTimeout = 10 * time.Second

// handleWebSocket serves the session event stream over WebSocket. The feed is
// write-only: client frames are drained and discarded.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.orch.Get(sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	lastEventID := int64(0)
	if raw := r.URL.Query().Get("lastEventId"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	opts := &websocket.AcceptOptions{}
	if h.cfg.IsDevelopment() {
		opts.OriginPatterns = []string{"*"}
	} else if h.cfg.FrontendURL != "" {
		opts.OriginPatterns = []string{h.cfg.FrontendURL}
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Error("failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	// CloseRead drains incoming frames and cancels the context when the
	// client goes away.
	ctx := ws.CloseRead(r.Context())

	events, cancel := h.orch.Hub().Subscribe(sessionID, lastEventID)
	defer cancel()

	h.logger.Info("WebSocket stream connected",
		"session_id", sessionID, "last_event_id", lastEventID)

	keepalive := time.NewTicker(h.cfg.SSE.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket stream disconnected", "session_id", sessionID)
			return
		case ev := <-events:
			writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, ws, ev)
			writeCancel()
			if err != nil {
				h.logger.Warn("failed to write WebSocket event", "error", err, "session_id", sessionID)
				return
			}
		case <-keepalive.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				h.logger.Info("WebSocket keepalive failed, closing", "session_id", sessionID)
				return
			}
		}
	}
}
