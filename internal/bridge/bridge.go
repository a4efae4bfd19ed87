// Package bridge turns fire-and-forget actions sent to an interactive
// browsing surface into awaitable calls.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout applies when a call does not set its own timeout.
const DefaultTimeout = 30 * time.Second

// ErrNoSurface is returned when no interactive surface is connected.
var ErrNoSurface = errors.New("no active browser surface")

// Action is the outbound event sent to the surface.
type Action struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	RequestID string `json:"requestId,omitempty"`
}

// Resolution is the surface's callback for a previously emitted action.
type Resolution struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Outcome is what a caller of Call receives. Exactly one Outcome is
// produced per call.
type Outcome struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// Emitter delivers actions to the surface. Emit must return ErrNoSurface
// when nothing is connected.
type Emitter interface {
	Emit(ctx context.Context, action Action) error
}

// Bridge correlates emitted actions with their resolutions.
// Use one Bridge per interactive surface.
type Bridge struct {
	emitter Emitter
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Outcome
}

// New creates a bridge that emits through e. A non-positive timeout
// selects DefaultTimeout.
func New(e Emitter, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		emitter: e,
		timeout: timeout,
		pending: make(map[string]chan Outcome),
	}
}

// Call emits an action and waits for its resolution, the timeout, or ctx.
// Whichever removes the pending entry first settles the call.
func (b *Bridge) Call(ctx context.Context, actionType string, payload any, timeout time.Duration) Outcome {
	if b.emitter == nil {
		return Outcome{Error: ErrNoSurface.Error()}
	}
	if timeout <= 0 {
		timeout = b.timeout
	}

	id := uuid.NewString()
	ch := make(chan Outcome, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	if err := b.emitter.Emit(ctx, Action{Type: actionType, Payload: payload, RequestID: id}); err != nil {
		if b.take(id) {
			return Outcome{Error: err.Error()}
		}
		return <-ch
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out
	case <-timer.C:
		if b.take(id) {
			slog.Warn("Browser action timed out", "type", actionType, "request_id", id, "timeout", timeout)
			return Outcome{TimedOut: true, Error: fmt.Sprintf("%s timed out after %s", actionType, timeout)}
		}
		return <-ch
	case <-ctx.Done():
		if b.take(id) {
			return Outcome{Error: ctx.Err().Error()}
		}
		return <-ch
	}
}

// Resolve settles the pending call for r.RequestID. It reports false
// when the id is unknown, already settled, or timed out.
func (b *Bridge) Resolve(r Resolution) bool {
	b.mu.Lock()
	ch, ok := b.pending[r.RequestID]
	if ok {
		delete(b.pending, r.RequestID)
	}
	b.mu.Unlock()

	if !ok {
		slog.Debug("Dropping resolution for unknown request", "request_id", r.RequestID)
		return false
	}
	ch <- Outcome{Success: r.Success, Data: r.Data, Error: r.Error}
	return true
}

// Pending returns the number of calls awaiting resolution.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) take(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[id]; !ok {
		return false
	}
	delete(b.pending, id)
	return true
}
