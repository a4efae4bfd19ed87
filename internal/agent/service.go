package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
)

// ErrTurnInProgress is returned when a session already has a running turn.
var ErrTurnInProgress = errors.New("a turn is already running for this session")

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message is required")

// ErrServiceClosed is returned by Run after Close.
var ErrServiceClosed = errors.New("agent service is shutting down")

// SessionStore is the part of the session manager the service needs.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Current(ctx context.Context) (*domain.Session, error)
	Append(ctx context.Context, id string, msgs ...domain.Message) error
}

// RunRequest is one user message addressed to a session. An empty
// SessionID targets the current session.
type RunRequest struct {
	SessionID string
	Message   string
	RequestID string
	Channel   string
	Observer  Observer
}

// RunResult is a finished turn bound to its session.
type RunResult struct {
	SessionID string `json:"session_id"`
	TurnResult
}

// Service binds the controller to sessions. At most one turn runs per
// session; turns in different sessions run independently.
type Service struct {
	controller *Controller
	sessions   SessionStore
	execLog    *timeline.ExecLog
	log        ConversationLogger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closing bool
	turns   sync.WaitGroup
}

// NewService wires a service. execLog and convLog may be nil.
func NewService(controller *Controller, sessions SessionStore, execLog *timeline.ExecLog, convLog ConversationLogger) *Service {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	return &Service{
		controller: controller,
		sessions:   sessions,
		execLog:    execLog,
		log:        convLog,
		running:    make(map[string]context.CancelFunc),
	}
}

// ExecLog returns the shared execution log, or nil.
func (s *Service) ExecLog() *timeline.ExecLog {
	return s.execLog
}

// Run processes one user message. The user message and the final message
// are appended to the session history even when ctx is cancelled.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := s.resolve(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.begin(sess.ID, cancel); err != nil {
		return nil, err
	}
	defer s.end(sess.ID)

	channel := req.Channel
	if channel == "" {
		channel = "chat_http"
	}
	userMsg := domain.NewMessage(domain.RoleUser, req.Message)
	s.logEvent(sess.ID, channel, "outbound", "chat_user_message", req.Message, map[string]any{
		"request_id": req.RequestID,
	})

	slog.Info("Agent turn started",
		"session_id", sess.ID,
		"request_id", req.RequestID,
		"message_length", len(req.Message),
	)

	res := s.controller.RunTurn(turnCtx, TurnInput{
		History:     sess.History,
		UserMessage: req.Message,
		Context:     sess.Context,
		Observer:    s.observe(sess.ID, channel, req.Observer),
	})

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelPersist()
	if err := s.sessions.Append(persistCtx, sess.ID, userMsg, res.Final); err != nil {
		slog.Error("Failed to persist turn", "error", err, "session_id", sess.ID)
		return &RunResult{SessionID: sess.ID, TurnResult: res}, fmt.Errorf("persist turn: %w", err)
	}

	s.logEvent(sess.ID, channel, "inbound", "chat_assistant_message", res.Final.Content, map[string]any{
		"request_id": req.RequestID,
		"outcome":    res.Outcome,
		"iterations": res.Iterations,
		"tool_calls": len(res.Memory),
		"error":      res.Final.Error,
	})
	return &RunResult{SessionID: sess.ID, TurnResult: res}, nil
}

// Abort cancels the running turn of a session. It reports whether a turn
// was running.
func (s *Service) Abort(sessionID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[sessionID]
	s.mu.Unlock()
	if ok {
		slog.Info("Agent turn abort requested", "session_id", sessionID)
		cancel()
	}
	return ok
}

// Running reports whether a session has a turn in flight.
func (s *Service) Running(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[sessionID]
	return ok
}

// Close rejects new turns, aborts the running ones, waits for them to
// persist their results and then flushes the conversation log.
func (s *Service) Close() {
	s.mu.Lock()
	s.closing = true
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()
	s.turns.Wait()
	if err := s.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

func (s *Service) resolve(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return s.sessions.Current(ctx)
	}
	return s.sessions.Get(ctx, id)
}

func (s *Service) begin(sessionID string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrServiceClosed
	}
	if _, busy := s.running[sessionID]; busy {
		return ErrTurnInProgress
	}
	s.running[sessionID] = cancel
	s.turns.Add(1)
	return nil
}

func (s *Service) end(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, sessionID)
	s.turns.Done()
}

// observe tees terminal step events into the conversation log.
func (s *Service) observe(sessionID, channel string, next Observer) Observer {
	return ObserverFuncs{
		Step: func(ev timeline.Event) {
			if ev.Entry.Kind.Terminal() || ev.Entry.Kind == domain.StepError {
				s.logEvent(sessionID, channel, "internal", "step_"+string(ev.Entry.Kind), ev.Entry.Text, map[string]any{
					"step_id": ev.Entry.ID,
					"tool":    ev.Entry.Tool,
					"detail":  ev.Entry.Detail,
				})
			}
			if next != nil {
				next.OnStep(ev)
			}
		},
		Partial: func(content string) {
			if next != nil {
				next.OnPartial(content)
			}
		},
	}
}

func (s *Service) logEvent(sessionID, channel, direction, eventType, content string, meta map[string]any) {
	s.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
