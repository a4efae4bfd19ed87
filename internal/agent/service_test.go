package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/llm/llmtest"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/session"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/store"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
)

func newTestService(t *testing.T, model *llmtest.ScriptedModel) (*Service, *session.Manager) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	mgr, err := session.NewManager(context.Background(), repo)
	require.NoError(t, err)

	c, caps := newTestController(t, model, Config{})
	svc := NewService(c, mgr, caps.Log.(*timeline.ExecLog), nil)
	return svc, mgr
}

// waitRunning polls until a turn is registered for the session.
func waitRunning(t *testing.T, svc *Service, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool { return svc.Running(sessionID) }, 5*time.Second, 5*time.Millisecond)
}

func TestServiceRunPersistsTurn(t *testing.T) {
	t.Parallel()

	model := llmtest.New(
		llmtest.Reply(toolBlock(`{"tool":"list_files","args":{"path":"/ws"}}`)),
		llmtest.Reply("Two files."),
	)
	svc, mgr := newTestService(t, model)
	ctx := context.Background()

	res, err := svc.Run(ctx, RunRequest{Message: "what is in my workspace?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinal, res.Outcome)
	assert.Equal(t, mgr.CurrentID(), res.SessionID)

	sess, err := mgr.Get(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	assert.Equal(t, domain.RoleUser, sess.History[0].Role)
	assert.Equal(t, "what is in my workspace?", sess.History[0].Content)
	assert.Equal(t, domain.RoleAssistant, sess.History[1].Role)
	assert.Equal(t, "Two files.", sess.History[1].Content)
	assert.Equal(t, "what is in my workspace?", sess.Title)

	assert.NotZero(t, svc.ExecLog().Len())
	assert.False(t, svc.Running(res.SessionID))
}

func TestServiceRunCarriesHistory(t *testing.T) {
	t.Parallel()

	model := llmtest.New(llmtest.Reply("Nice to meet you, Ada."), llmtest.Reply("Your name is Ada."))
	svc, _ := newTestService(t, model)
	ctx := context.Background()

	_, err := svc.Run(ctx, RunRequest{Message: "I am Ada"})
	require.NoError(t, err)
	_, err = svc.Run(ctx, RunRequest{Message: "who am I?"})
	require.NoError(t, err)

	transcripts := model.Transcripts()
	require.Len(t, transcripts, 2)
	second := transcripts[1]
	var contents []string
	for _, m := range second {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "I am Ada")
	assert.Contains(t, contents, "Nice to meet you, Ada.")
	assert.Equal(t, "who am I?", second[len(second)-1].Content)
}

func TestServiceOneTurnPerSession(t *testing.T) {
	t.Parallel()

	model := llmtest.New(llmtest.Step{Text: "Working on", Block: true}, llmtest.Reply("other session"))
	svc, mgr := newTestService(t, model)
	ctx := context.Background()

	first, err := mgr.Create(ctx, "first")
	require.NoError(t, err)

	streaming := make(chan struct{})
	var once sync.Once
	obs := ObserverFuncs{Partial: func(s string) {
		if s == "Working on" {
			once.Do(func() { close(streaming) })
		}
	}}

	done := make(chan *RunResult, 1)
	go func() {
		res, err := svc.Run(ctx, RunRequest{SessionID: first.ID, Message: "long task", Observer: obs})
		assert.NoError(t, err)
		done <- res
	}()
	waitRunning(t, svc, first.ID)
	select {
	case <-streaming:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never streamed")
	}

	_, err = svc.Run(ctx, RunRequest{SessionID: first.ID, Message: "again"})
	assert.ErrorIs(t, err, ErrTurnInProgress)

	second, err := mgr.Create(ctx, "second")
	require.NoError(t, err)
	res, err := svc.Run(ctx, RunRequest{SessionID: second.ID, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "other session", res.Final.Content)

	assert.True(t, svc.Abort(first.ID))
	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, OutcomeAborted, res.Outcome)
		assert.Equal(t, "Working on", res.Final.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("aborted turn did not finish")
	}

	sess, err := mgr.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	assert.Equal(t, "Working on", sess.History[1].Content)
	assert.False(t, sess.History[1].Streaming)

	assert.False(t, svc.Abort(first.ID))
}

func TestServiceRunErrors(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, llmtest.New())
	ctx := context.Background()

	_, err := svc.Run(ctx, RunRequest{Message: ""})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Run(ctx, RunRequest{Message: "  \n\t "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Run(ctx, RunRequest{SessionID: "missing", Message: "hi"})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestServiceCloseWaitsForRunningTurns(t *testing.T) {
	t.Parallel()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	mgr, err := session.NewManager(context.Background(), repo)
	require.NoError(t, err)

	logDir := t.TempDir()
	convLog, err := NewConversationLogger(ConversationLogConfig{Enabled: true, Dir: logDir, QueueSize: 64}, nil)
	require.NoError(t, err)

	model := llmtest.New(llmtest.Step{Text: "Half done", Block: true})
	c, _ := newTestController(t, model, Config{})
	svc := NewService(c, mgr, nil, convLog)

	ctx := context.Background()
	sess, err := mgr.Create(ctx, "shutdown")
	require.NoError(t, err)

	streaming := make(chan struct{})
	var once sync.Once
	obs := ObserverFuncs{Partial: func(string) { once.Do(func() { close(streaming) }) }}

	done := make(chan *RunResult, 1)
	go func() {
		res, _ := svc.Run(ctx, RunRequest{SessionID: sess.ID, Message: "long task", Observer: obs})
		done <- res
	}()
	select {
	case <-streaming:
	case <-time.After(5 * time.Second):
		t.Fatal("turn never streamed")
	}

	svc.Close()

	// Close returns only after the turn persisted and logged its result.
	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 2)

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, OutcomeAborted, res.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("aborted turn did not return")
	}

	data, err := os.ReadFile(filepath.Join(logDir, sess.ID+".ndjson"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "chat_assistant_message")

	_, err = svc.Run(ctx, RunRequest{SessionID: sess.ID, Message: "after close"})
	assert.ErrorIs(t, err, ErrServiceClosed)
}
