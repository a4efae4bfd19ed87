package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
)

var _ tools.MemoryStore = (*MemoryKV)(nil)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "neuro.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSession(id string, lastActive time.Time) *domain.Session {
	return &domain.Session{
		ID:           id,
		Title:        "Session " + id,
		CreatedAt:    lastActive,
		LastActiveAt: lastActive,
	}
}

func TestSQLiteStore_SessionRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Millisecond)
	sess := newSession("a", now)
	sess.Context = map[string]string{"cwd": "/projects"}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Session a", got.Title)
	assert.Equal(t, "/projects", got.Context["cwd"])
	assert.True(t, got.CreatedAt.Equal(now))

	got.Title = "Renamed"
	got.Context = nil
	require.NoError(t, s.UpdateSession(ctx, got))

	got, err = s.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Empty(t, got.Context)
}

func TestSQLiteStore_GetSessionMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_MessagesKeepAppendOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	require.NoError(t, s.CreateSession(ctx, newSession("a", base)))

	same := base.Add(time.Minute)
	require.NoError(t, s.AppendMessages(ctx, "a",
		domain.Message{Role: domain.RoleUser, Content: "first", Timestamp: same},
		domain.Message{Role: domain.RoleAssistant, Content: "second", Timestamp: same},
	))
	require.NoError(t, s.AppendMessages(ctx, "a",
		domain.Message{Role: domain.RoleAssistant, Content: "⚠️ broke", Error: true, Timestamp: same.Add(time.Second)},
	))

	msgs, err := s.ListMessages(ctx, "a")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[2].Role)
	assert.True(t, msgs[2].Error)
	assert.False(t, msgs[0].Error)

	sess, err := s.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.True(t, sess.LastActiveAt.Equal(same.Add(time.Second)))
}

func TestSQLiteStore_ListAndExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.CreateSession(ctx, newSession("old", now.Add(-48*time.Hour))))
	require.NoError(t, s.CreateSession(ctx, newSession("recent", now.Add(-time.Minute))))
	require.NoError(t, s.CreateSession(ctx, newSession("mid", now.Add(-time.Hour))))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "recent", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "old", list[2].ID)

	expired, err := s.GetExpiredSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].ID)
}

func TestSQLiteStore_DeleteSessionRemovesMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateSession(ctx, newSession("a", time.Now())))
	require.NoError(t, s.CreateSession(ctx, newSession("b", time.Now())))
	require.NoError(t, s.AppendMessages(ctx, "a", domain.NewMessage(domain.RoleUser, "hi")))
	require.NoError(t, s.AppendMessages(ctx, "b", domain.NewMessage(domain.RoleUser, "hello")))

	require.NoError(t, s.DeleteSession(ctx, "a"))

	got, err := s.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	msgs, err := s.ListMessages(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = s.ListMessages(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSQLiteStore_Settings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetSetting(ctx, "current_session")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "current_session", "a"))
	require.NoError(t, s.SetSetting(ctx, "current_session", "b"))

	v, ok, err := s.GetSetting(ctx, "current_session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestMemoryKV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := NewMemoryKV(newTestStore(t))

	_, ok, err := kv.Get(ctx, "name")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "name", "Ada"))
	require.NoError(t, kv.Set(ctx, "lang", "go"))
	require.NoError(t, kv.Set(ctx, "name", "Grace"))

	v, ok, err := kv.Get(ctx, "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Grace", v)

	require.NoError(t, kv.Delete(ctx, "lang"))
	require.NoError(t, kv.Delete(ctx, "never-set"))

	all, err := kv.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Grace"}, all)
}

func TestIsConflictError(t *testing.T) {
	t.Parallel()
	assert.False(t, IsConflictError(nil))
	assert.False(t, IsConflictError(errors.New("no such table")))
	assert.True(t, IsConflictError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsConflictError(errors.New("database is locked")))
	assert.True(t, IsBusyError(errors.New("SQLITE_BUSY")))
	assert.False(t, IsLockedError(errors.New("SQLITE_BUSY")))
}
