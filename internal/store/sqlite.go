package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		context_json TEXT,
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		is_error INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

	CREATE TABLE IF NOT EXISTS memory (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// withRetry runs a write with exponential backoff on SQLITE_BUSY and
// "database is locked" errors.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < writeRetries; i++ {
		err = fn()
		if err == nil || !IsConflictError(err) {
			return err
		}
		if i == writeRetries-1 {
			break
		}
		delay := writeBaseDelay * time.Duration(1<<i)
		slog.Debug("Database busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, writeRetries, err)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	ctxJSON, err := encodeContext(sess.Context)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, context_json, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?)`,
			sess.ID, sess.Title, ctxJSON,
			sess.CreatedAt.UnixMilli(), sess.LastActiveAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session without its history.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, context_json, created_at, last_active_at
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	return s.querySessions(ctx, `
		SELECT id, title, context_json, created_at, last_active_at
		FROM sessions ORDER BY last_active_at DESC, created_at DESC`)
}

// GetExpiredSessions retrieves sessions idle for longer than ttl.
func (s *SQLiteStore) GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.Session, error) {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	return s.querySessions(ctx, `
		SELECT id, title, context_json, created_at, last_active_at
		FROM sessions WHERE last_active_at < ? ORDER BY last_active_at`, cutoff)
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSession stores title, context and last activity of a session.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *domain.Session) error {
	ctxJSON, err := encodeContext(sess.Context)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "update session", func() error {
		_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET title = ?, context_json = ?, last_active_at = ?
		WHERE id = ?`,
			sess.Title, ctxJSON, sess.LastActiveAt.UnixMilli(), sess.ID)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes a session and its messages in one transaction.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete session", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return tx.Commit()
	})
}

// AppendMessages appends messages in order and bumps the session's last
// activity to the newest message timestamp.
func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.withRetry(ctx, "append messages", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session_id, role, content, is_error, created_at)
		VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		var latest time.Time
		for _, m := range msgs {
			ts := m.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			if ts.After(latest) {
				latest = ts
			}
			if _, err := stmt.ExecContext(ctx, sessionID, string(m.Role), m.Content, boolToInt(m.Error), ts.UnixMilli()); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET last_active_at = MAX(last_active_at, ?) WHERE id = ?`,
			latest.UnixMilli(), sessionID); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return tx.Commit()
	})
}

// ListMessages returns a session's history in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, is_error, created_at
		FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m         domain.Message
			role      string
			isError   int
			createdAt int64
		)
		if err := rows.Scan(&role, &m.Content, &isError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = domain.Role(role)
		m.Error = isError != 0
		m.Timestamp = time.UnixMilli(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// GetSetting reads a process-wide setting.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return s.getValue(ctx, `SELECT value FROM settings WHERE key = ?`, key)
}

// SetSetting writes a process-wide setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	return s.withRetry(ctx, "set setting", func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			return fmt.Errorf("upsert setting: %w", err)
		}
		return nil
	})
}

// GetMemory reads one memory entry.
func (s *SQLiteStore) GetMemory(ctx context.Context, key string) (string, bool, error) {
	return s.getValue(ctx, `SELECT value FROM memory WHERE key = ?`, key)
}

// SetMemory creates or replaces one memory entry.
func (s *SQLiteStore) SetMemory(ctx context.Context, key, value string) error {
	return s.withRetry(ctx, "set memory", func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
			key, value, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert memory: %w", err)
		}
		return nil
	})
}

// DeleteMemory removes one memory entry.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, key string) error {
	return s.withRetry(ctx, "delete memory", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM memory WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete memory: %w", err)
		}
		return nil
	})
}

// AllMemory returns the whole memory table.
func (s *SQLiteStore) AllMemory(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM memory`)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) getValue(ctx context.Context, query, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan value: %w", err)
	}
	return value, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                domain.Session
		ctxJSON             sql.NullString
		createdAt, lastSeen int64
	)
	if err := row.Scan(&sess.ID, &sess.Title, &ctxJSON, &createdAt, &lastSeen); err != nil {
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.LastActiveAt = time.UnixMilli(lastSeen)
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &sess.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return &sess, nil
}

func encodeContext(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
