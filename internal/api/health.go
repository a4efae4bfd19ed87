package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SurfaceStatus reports whether the browsing surface is attached.
type SurfaceStatus interface {
	Connected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db      Pinger
	surface SurfaceStatus
	model   string
	timeout time.Duration
}

// NewHealthHandler creates a health handler. surface may be nil.
func NewHealthHandler(db Pinger, surface SurfaceStatus, model string) *HealthHandler {
	return &HealthHandler{db: db, surface: surface, model: model, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies. A
// detached surface is reported but does not degrade the service.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	if h.model != "" {
		status["model"] = h.model
	}
	statusCode := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.surface != nil {
		if h.surface.Connected() {
			checks["surface"] = "connected"
		} else {
			checks["surface"] = "disconnected"
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
