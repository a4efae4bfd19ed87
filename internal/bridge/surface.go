package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// inbound is any message sent by the surface.
type inbound struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Success   bool   `json:"success,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SurfaceHub is the WebSocket endpoint the browsing surface connects to.
// It emits actions to the connected surface and feeds its results into
// the hub's Bridge. Only one surface is active at a time.
type SurfaceHub struct {
	bridge        *Bridge
	allowedOrigin string
	isDev         bool

	mu   sync.RWMutex
	conn *websocket.Conn
}

// NewSurfaceHub creates a hub with its own Bridge.
func NewSurfaceHub(timeout time.Duration, allowedOrigin string, isDev bool) *SurfaceHub {
	h := &SurfaceHub{
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
	h.bridge = New(h, timeout)
	return h
}

// Bridge returns the bridge fed by this hub.
func (h *SurfaceHub) Bridge() *Bridge {
	return h.bridge
}

// Connected reports whether a surface is attached.
func (h *SurfaceHub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil
}

// Emit implements Emitter.
func (h *SurfaceHub) Emit(ctx context.Context, action Action) error {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()
	if conn == nil {
		return ErrNoSurface
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send action: %w", err)
	}
	slog.Debug("Browser action emitted", "type", action.Type, "request_id", action.RequestID)
	return nil
}

// ServeHTTP upgrades the request and serves the surface until it disconnects.
func (h *SurfaceHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Surface connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "surface detached"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.register(ws)
	defer h.unregister(ws)

	h.readLoop(r.Context(), ws)
	slog.Info("Surface disconnected", "pending", h.bridge.Pending())
}

func (h *SurfaceHub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil && h.conn != conn {
		_ = h.conn.Close(websocket.StatusNormalClosure, "surface replaced")
	}
	h.conn = conn
	slog.Info("Surface registered")
}

func (h *SurfaceHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == conn {
		h.conn = nil
		slog.Info("Surface unregistered")
	}
}

func (h *SurfaceHub) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Surface closed the connection")
			} else if ctx.Err() == nil {
				slog.Warn("Surface read error", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("Ignoring undecodable surface message", "error", err)
			continue
		}

		switch msg.Type {
		case "result":
			h.bridge.Resolve(Resolution{
				RequestID: msg.RequestID,
				Success:   msg.Success,
				Data:      msg.Data,
				Error:     msg.Error,
			})
		case "ping":
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Debug("Ignoring surface message", "type", msg.Type)
		}
	}
}

func (h *SurfaceHub) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Surface origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *SurfaceHub) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
