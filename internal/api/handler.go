// Package api implements the HTTP surface of the planning service: session
// CRUD, message submission, plan retrieval, and the SSE/WebSocket event
// streams.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/planfold/planfold/internal/config"
	"github.com/planfold/planfold/internal/orchestrator"
	"github.com/planfold/planfold/internal/store"
)

const defaultHistoryLimit = 50

// Handler serves the planning API.
type Handler struct {
	orch        *orchestrator.Orchestrator
	repo        store.Repository
	rateLimiter *RateLimiter
	cfg         *config.Config
	logger      *slog.Logger
}

func NewHandler(orch *orchestrator.Orchestrator, repo store.Repository, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orch:        orch,
		repo:        repo,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		cfg:         cfg,
		logger:      logger,
	}
}

// Close releases the handler's background resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

// RegisterRoutes mounts the API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.handleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/state", h.handleState)
				r.Post("/messages", h.handleSubmit)
				r.Get("/history", h.handleHistory)
				r.Get("/plan", h.handlePlan)
				r.Get("/events", h.handleEvents)
				r.Delete("/", h.handleRemove)
			})
		})
	})
	r.Get("/ws/sessions/{sessionID}", h.handleWebSocket)
}

type submitRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.orch.NewSession(r.Context())
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"state":      sess.State(),
		"created_at": sess.CreatedAt,
	})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"state":      sess.State(),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if !h.rateLimiter.Allow(sessionID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.SSE.MaxRequestBodySize)
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.orch.Submit(r.Context(), sessionID, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, orchestrator.ErrSessionBusy):
		writeError(w, http.StatusConflict, "session is busy, try again when processing completes")
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
	default:
		h.logger.Error("submit failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := h.orch.History(sessionID, limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   msgs,
	})
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	plan := sess.Plan()
	if plan == nil {
		writeError(w, http.StatusNotFound, "no plan exists for this session yet")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.orch.Remove(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	storeStatus := "ok"
	if err := h.repo.Ping(r.Context()); err != nil {
		h.logger.Error("store ping failed", "error", err)
		storeStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":    storeStatus,
		"model":     h.cfg.LLM.Model,
		"strategy":  h.cfg.Strategy,
		"timestamp": time.Now().UTC(),
	})
}

// session resolves the sessionID route param, writing a 404 on miss.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*orchestrator.Session, bool) {
	sess, err := h.orch.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
