package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/middleware"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/session"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// SSE event names of the chat stream.
const (
	EventStep    = "step"
	EventPartial = "partial"
	EventFinal   = "final"
	EventError   = "error"
	EventPing    = "ping"
)

// ChatRequest is the body of POST /api/agent/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// AbortRequest is the body of POST /api/agent/abort.
type AbortRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// CurrentSessioner reports the current session id.
type CurrentSessioner interface {
	CurrentID() string
}

// HandlerConfig tunes the chat handler. Zero values fall back to defaults.
type HandlerConfig struct {
	KeepaliveInterval  time.Duration
	MaxRequestBodySize int64
}

// Handler serves the agent HTTP API.
type Handler struct {
	agent       *Service
	current     CurrentSessioner
	rateLimiter *middleware.RateLimiter
	cfg         HandlerConfig
}

// NewHandler creates an agent handler. rateLimiter may be nil.
func NewHandler(agent *Service, current CurrentSessioner, rateLimiter *middleware.RateLimiter, cfg HandlerConfig) *Handler {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 15 * time.Second
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		agent:       agent,
		current:     current,
		rateLimiter: rateLimiter,
		cfg:         cfg,
	}
}

// RegisterRoutes registers agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Post("/abort", h.HandleAbort)
		r.Get("/log", h.HandleLog)
		r.Delete("/log", h.HandleClearLog)
	})
}

// sseStream writes events to one response. Headers are sent with the first
// event so that errors before the turn starts can still use a status code.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

func (s *sseStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := writeSSE(s.w, event, string(data)); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *sseStream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// HandleChat handles POST /api/agent/chat. The turn's step events, partial
// output and final message are streamed as server-sent events.
//
//nolint:gocyclo // Validation and streaming branches are kept inline to preserve request flow.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, `{"error": "request body too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, `{"error": "message is required"}`, http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" && h.current != nil {
		sessionID = h.current.CurrentID()
	}
	if h.rateLimiter != nil && !h.rateLimiter.Allow(rateKey(sessionID, r)) {
		http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Agent chat request",
		"session_id", sessionID,
		"request_id", reqID,
		"message_length", len(req.Message),
	)

	stream := &sseStream{w: w, flusher: flusher}
	defer stream.close()

	observer := ObserverFuncs{
		Step: func(ev timeline.Event) {
			if err := stream.send(EventStep, ev); err != nil {
				slog.Warn("failed to write SSE step event", "error", err, "request_id", reqID)
			}
		},
		Partial: func(content string) {
			if err := stream.send(EventPartial, map[string]string{"content": content}); err != nil {
				slog.Warn("failed to write SSE partial event", "error", err, "request_id", reqID)
			}
		},
	}

	stopKeepalive := h.keepalive(stream)
	res, err := h.agent.Run(r.Context(), RunRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		RequestID: reqID,
		Observer:  observer,
	})
	stopKeepalive()

	if err != nil && res == nil {
		if stream.isStarted() {
			_ = stream.send(EventError, map[string]string{"error": err.Error()})
			return
		}
		switch {
		case errors.Is(err, ErrTurnInProgress):
			http.Error(w, `{"error": "a turn is already running for this session"}`, http.StatusConflict)
		case errors.Is(err, session.ErrSessionNotFound):
			http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrServiceClosed):
			http.Error(w, `{"error": "service is shutting down"}`, http.StatusServiceUnavailable)
		case errors.Is(err, ErrEmptyMessage):
			http.Error(w, `{"error": "message is required"}`, http.StatusBadRequest)
		default:
			slog.Error("Agent chat failed", "error", err, "request_id", reqID)
			http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		}
		return
	}

	if err := stream.send(EventFinal, res); err != nil {
		slog.Warn("failed to write SSE final event", "error", err, "request_id", reqID)
		return
	}
	if err != nil {
		_ = stream.send(EventError, map[string]string{"error": err.Error()})
	}
}

// keepalive pings the stream while the turn runs, once headers are out.
func (h *Handler) keepalive(stream *sseStream) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.cfg.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !stream.isStarted() {
					continue
				}
				if err := stream.send(EventPing, map[string]string{"status": "alive"}); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// HandleAbort handles POST /api/agent/abort.
func (h *Handler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)

	var req AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" && h.current != nil {
		req.SessionID = h.current.CurrentID()
	}

	aborted := h.agent.Abort(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"aborted":    aborted,
	})
}

// HandleLog handles GET /api/agent/log.
func (h *Handler) HandleLog(w http.ResponseWriter, _ *http.Request) {
	execLog := h.agent.ExecLog()
	if execLog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  execLog.Entries(),
		"capacity": execLog.Capacity(),
	})
}

// HandleClearLog handles DELETE /api/agent/log.
func (h *Handler) HandleClearLog(w http.ResponseWriter, _ *http.Request) {
	if execLog := h.agent.ExecLog(); execLog != nil {
		execLog.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}

func rateKey(sessionID string, r *http.Request) string {
	if sessionID != "" {
		return "session:" + sessionID
	}
	return "addr:" + r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
