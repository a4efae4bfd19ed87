// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// Repository defines the interface for persisting sessions, their message
// history and the agent's key/value memory.
type Repository interface {
	// CreateSession inserts a new session row. History is ignored.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession retrieves a session without its history. Returns nil, nil
	// when the session does not exist.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns every session, most recently active first.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// UpdateSession stores title, context and last activity of a session.
	UpdateSession(ctx context.Context, s *domain.Session) error

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessages appends messages to a session's history in order and
	// bumps its last activity.
	AppendMessages(ctx context.Context, sessionID string, msgs ...domain.Message) error

	// ListMessages returns a session's history in append order.
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)

	// GetExpiredSessions retrieves sessions idle for longer than ttl.
	GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.Session, error)

	// GetSetting reads a process-wide setting. Missing keys return "", false.
	GetSetting(ctx context.Context, key string) (string, bool, error)

	// SetSetting writes a process-wide setting.
	SetSetting(ctx context.Context, key, value string) error

	// GetMemory reads one entry of the agent's key/value memory.
	GetMemory(ctx context.Context, key string) (string, bool, error)

	// SetMemory creates or replaces one memory entry.
	SetMemory(ctx context.Context, key, value string) error

	// DeleteMemory removes one memory entry. Missing keys are not an error.
	DeleteMemory(ctx context.Context, key string) error

	// AllMemory returns the whole memory table.
	AllMemory(ctx context.Context) (map[string]string, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
