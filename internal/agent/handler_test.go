package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/llm/llmtest"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/middleware"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/session"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
)

type sseEvent struct {
	Name string
	Data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.Name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func newTestServer(t *testing.T, model *llmtest.ScriptedModel, rl *middleware.RateLimiter) (*httptest.Server, *Service, *session.Manager) {
	t.Helper()
	svc, mgr := newTestService(t, model)
	h := NewHandler(svc, mgr, rl, HandlerConfig{KeepaliveInterval: time.Hour})

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc, mgr
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHandleChatStreamsTurn(t *testing.T) {
	t.Parallel()

	model := llmtest.New(
		llmtest.Reply("Looking.\n"+toolBlock(`{"tool":"list_files","args":{"path":"/ws"}}`)),
		llmtest.Reply("notes.txt and todo.md"),
	)
	srv, _, _ := newTestServer(t, model, nil)

	resp := postJSON(t, srv.URL+"/api/agent/chat", `{"message":"list my files"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)

	var sawToolSuccess, sawPartial bool
	for _, ev := range events[:len(events)-1] {
		switch ev.Name {
		case EventStep:
			var step timeline.Event
			require.NoError(t, json.Unmarshal([]byte(ev.Data), &step))
			if step.Entry.Kind == "tool-success" {
				sawToolSuccess = true
				assert.Equal(t, "list_files", step.Entry.Tool)
			}
		case EventPartial:
			sawPartial = true
			assert.NotContains(t, ev.Data, "```tool")
		}
	}
	assert.True(t, sawToolSuccess)
	assert.True(t, sawPartial)

	last := events[len(events)-1]
	require.Equal(t, EventFinal, last.Name)
	var res RunResult
	require.NoError(t, json.Unmarshal([]byte(last.Data), &res))
	assert.Equal(t, OutcomeFinal, res.Outcome)
	assert.Equal(t, "notes.txt and todo.md", res.Final.Content)
	assert.NotEmpty(t, res.SessionID)
}

func TestHandleChatValidation(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, llmtest.New(), nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"empty message", `{"message":""}`, http.StatusBadRequest},
		{"blank message", `{"message":"  \n\t "}`, http.StatusBadRequest},
		{"unknown session", `{"message":"hi","session_id":"missing"}`, http.StatusNotFound},
		{"too large", `{"message":"` + strings.Repeat("a", defaultMaxRequestBodySize+1) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/agent/chat", tt.body)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHandleChatConflictAndAbort(t *testing.T) {
	t.Parallel()

	model := llmtest.New(llmtest.Step{Text: "Thinking hard", Block: true})
	srv, svc, mgr := newTestServer(t, model, nil)

	sess, err := mgr.Create(context.Background(), "busy")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var events []sseEvent
	go func() {
		defer wg.Done()
		resp := postJSON(t, srv.URL+"/api/agent/chat", `{"message":"long job","session_id":"`+sess.ID+`"}`)
		defer resp.Body.Close()
		events = readEvents(t, resp.Body)
	}()
	waitRunning(t, svc, sess.ID)

	resp := postJSON(t, srv.URL+"/api/agent/chat", `{"message":"again","session_id":"`+sess.ID+`"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// An empty body aborts the current session.
	resp = postJSON(t, srv.URL+"/api/agent/abort", ``)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		SessionID string `json:"session_id"`
		Aborted   bool   `json:"aborted"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, sess.ID, out.SessionID)
	assert.True(t, out.Aborted)

	wg.Wait()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventFinal, last.Name)
	var res RunResult
	require.NoError(t, json.Unmarshal([]byte(last.Data), &res))
	assert.Equal(t, OutcomeAborted, res.Outcome)
}

func TestHandleChatRateLimited(t *testing.T) {
	t.Parallel()

	rl := middleware.NewRateLimiter(1, 1)
	t.Cleanup(rl.Close)
	srv, _, _ := newTestServer(t, llmtest.New(llmtest.Reply("one"), llmtest.Reply("two")), rl)

	resp := postJSON(t, srv.URL+"/api/agent/chat", `{"message":"first"}`)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/agent/chat", `{"message":"second"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHandleLog(t *testing.T) {
	t.Parallel()
	srv, svc, _ := newTestServer(t, llmtest.New(llmtest.Reply("hello")), nil)

	_, err := svc.Run(context.Background(), RunRequest{Message: "hi"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/agent/log")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Entries []struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Entries)
	assert.Contains(t, out.Entries[0].Message, "Turn started")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/agent/log", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	assert.Zero(t, svc.ExecLog().Len())
}
