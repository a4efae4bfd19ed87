// Package session manages the set of conversations and which one is current.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/store"
)

// ErrSessionNotFound is returned for operations on an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// DefaultTitle names sessions created without a title. Such sessions take
// their title from the first user message.
const DefaultTitle = "New session"

const (
	currentSessionKey = "current_session"
	maxTitleRunes     = 60
)

// Manager owns session lifecycle on top of a Repository. Exactly one session
// is current at any time once one exists.
type Manager struct {
	repo store.Repository

	mu      sync.Mutex
	current string
}

// NewManager restores the current session from the repository, if any.
func NewManager(ctx context.Context, repo store.Repository) (*Manager, error) {
	m := &Manager{repo: repo}

	id, ok, err := repo.GetSetting(ctx, currentSessionKey)
	if err != nil {
		return nil, fmt.Errorf("load current session: %w", err)
	}
	if ok {
		sess, err := repo.GetSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load current session: %w", err)
		}
		if sess != nil {
			m.current = id
		}
	}
	return m, nil
}

// Create starts a new session and makes it current.
func (m *Manager) Create(ctx context.Context, title string) (*domain.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now()
	sess := &domain.Session{
		ID:           uuid.NewString(),
		Title:        title,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := m.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setCurrentLocked(ctx, sess.ID); err != nil {
		return nil, err
	}

	slog.Info("Session created", "session_id", sess.ID, "title", sess.Title)
	return sess, nil
}

// Get returns a session with its full history.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	history, err := m.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	sess.History = history
	return sess, nil
}

// List returns all sessions without history, most recently active first.
func (m *Manager) List(ctx context.Context) ([]*domain.Session, error) {
	sessions, err := m.repo.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// CurrentID returns the current session id, or "" when none exists yet.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Current returns the current session with history, creating one if there
// is none.
func (m *Manager) Current(ctx context.Context) (*domain.Session, error) {
	id := m.CurrentID()
	if id == "" {
		return m.Create(ctx, "")
	}
	sess, err := m.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(ctx, "")
	}
	return sess, err
}

// Switch makes id the current session. Other sessions are untouched.
func (m *Manager) Switch(ctx context.Context, id string) error {
	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCurrentLocked(ctx, id)
}

// Append adds messages to a session's history. A session still carrying
// the default title is renamed after its first user message.
func (m *Manager) Append(ctx context.Context, id string, msgs ...domain.Message) error {
	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if err := m.repo.AppendMessages(ctx, id, msgs...); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}

	if sess.Title != DefaultTitle {
		return nil
	}
	for _, msg := range msgs {
		if msg.Role != domain.RoleUser {
			continue
		}
		if title := titleFrom(msg.Content); title != "" {
			// Re-read so the bumped last activity is not overwritten.
			fresh, err := m.repo.GetSession(ctx, id)
			if err != nil || fresh == nil {
				return err
			}
			fresh.Title = title
			if err := m.repo.UpdateSession(ctx, fresh); err != nil {
				return fmt.Errorf("rename session: %w", err)
			}
		}
		break
	}
	return nil
}

// SetContext sets one context value of a session. An empty value removes
// the key.
func (m *Manager) SetContext(ctx context.Context, id, key, value string) error {
	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if value == "" {
		delete(sess.Context, key)
	} else {
		if sess.Context == nil {
			sess.Context = make(map[string]string)
		}
		sess.Context[key] = value
	}
	if err := m.repo.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting the current session moves "current"
// to the most recently active remaining session, if any.
func (m *Manager) Delete(ctx context.Context, id string) error {
	sess, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if err := m.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != id {
		return nil
	}

	remaining, err := m.repo.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	next := ""
	if len(remaining) > 0 {
		next = remaining[0].ID
	}
	return m.setCurrentLocked(ctx, next)
}

func (m *Manager) setCurrentLocked(ctx context.Context, id string) error {
	if err := m.repo.SetSetting(ctx, currentSessionKey, id); err != nil {
		return fmt.Errorf("persist current session: %w", err)
	}
	m.current = id
	return nil
}

func titleFrom(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = strings.TrimSpace(line)
	r := []rune(line)
	if len(r) > maxTitleRunes {
		return strings.TrimSpace(string(r[:maxTitleRunes])) + "…"
	}
	return line
}
