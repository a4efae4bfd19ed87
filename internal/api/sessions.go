package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/session"
)

// TurnTracker reports sessions with a turn in flight.
type TurnTracker interface {
	Running(sessionID string) bool
}

// SessionHandler serves the session REST API.
type SessionHandler struct {
	mgr   *session.Manager
	turns TurnTracker
}

// NewSessionHandler creates a session handler. turns may be nil.
func NewSessionHandler(mgr *session.Manager, turns TurnTracker) *SessionHandler {
	return &SessionHandler{mgr: mgr, turns: turns}
}

type sessionSummary struct {
	*domain.Session
	Current bool `json:"current"`
	Running bool `json:"running"`
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/current", h.GetCurrent)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/switch", h.Switch)
		r.Put("/{id}/context", h.SetContext)
		r.Delete("/{id}", h.Delete)
	})
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.mgr.List(r.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	current := h.mgr.CurrentID()
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			Session: s,
			Current: s.ID == current,
			Running: h.turns != nil && h.turns.Running(s.ID),
		})
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": out, "current": current})
}

// Create handles POST /api/sessions. The new session becomes current.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := h.mgr.Create(r.Context(), req.Title)
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusCreated, sess)
}

// GetCurrent handles GET /api/sessions/current.
func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	sess, err := h.mgr.Current(r.Context())
	if err != nil {
		slog.Error("Failed to load current session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	JSON(w, http.StatusOK, sess)
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.mgr.Get(r.Context(), chi.URLParam(r, "id"))
	if h.writeErr(w, err, "failed to load session") {
		return
	}
	JSON(w, http.StatusOK, sess)
}

// Switch handles POST /api/sessions/{id}/switch.
func (h *SessionHandler) Switch(w http.ResponseWriter, r *http.Request) {
	if h.writeErr(w, h.mgr.Switch(r.Context(), chi.URLParam(r, "id")), "failed to switch session") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetContext handles PUT /api/sessions/{id}/context.
func (h *SessionHandler) SetContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.Key == "" {
		Error(w, http.StatusBadRequest, "key is required")
		return
	}
	err := h.mgr.SetContext(r.Context(), chi.URLParam(r, "id"), req.Key, req.Value)
	if h.writeErr(w, err, "failed to update session") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/sessions/{id}. Sessions with a running turn
// must be aborted first.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.turns != nil && h.turns.Running(id) {
		Error(w, http.StatusConflict, "session has a running turn")
		return
	}
	if h.writeErr(w, h.mgr.Delete(r.Context(), id), "failed to delete session") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) writeErr(w http.ResponseWriter, err error, msg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, session.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	default:
		slog.Error(msg, "error", err)
		Error(w, http.StatusInternalServerError, msg)
	}
	return true
}
