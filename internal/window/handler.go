package window

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ShellEvent is a state change reported by the shell itself.
type ShellEvent struct {
	Type     string `json:"type"` // closed, minimized or focused
	WindowID string `json:"window_id"`
}

// Handler exposes the shell stream and window state.
type Handler struct {
	hub  *Hub
	ctrl *Controller
}

// NewHandler creates a window handler.
func NewHandler(hub *Hub, ctrl *Controller) *Handler {
	return &Handler{hub: hub, ctrl: ctrl}
}

// RegisterRoutes registers shell routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/shell", func(r chi.Router) {
		r.Get("/stream", h.hub.ServeHTTP)
		r.Get("/windows", h.HandleList)
		r.Post("/events", h.HandleShellEvent)
	})
}

// HandleList handles GET /api/shell/windows.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	wins, _ := h.ctrl.List(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"windows": wins})
}

// HandleShellEvent handles POST /api/shell/events.
func (h *Handler) HandleShellEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var ev ShellEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.WindowID == "" {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	var err error
	switch ev.Type {
	case "closed":
		err = h.ctrl.Closed(ev.WindowID)
	case "minimized":
		err = h.ctrl.Minimized(ev.WindowID)
	case "focused":
		err = h.ctrl.Focus(r.Context(), ev.WindowID)
	default:
		http.Error(w, `{"error": "unknown event type"}`, http.StatusBadRequest)
		return
	}
	if errors.Is(err, ErrWindowNotFound) {
		http.Error(w, `{"error": "window not found"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
