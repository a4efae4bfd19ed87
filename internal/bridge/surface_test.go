package bridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSurface(t *testing.T, hub *SurfaceHub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	require.Eventually(t, hub.Connected, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestSurfaceHubRoundTrip(t *testing.T) {
	t.Parallel()

	hub := NewSurfaceHub(2*time.Second, "*", false)
	conn := dialSurface(t, hub)

	// The fake surface answers every action with its own type.
	go func() {
		ctx := context.Background()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var a Action
			if json.Unmarshal(data, &a) != nil {
				continue
			}
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"noise"}`))
			reply, _ := json.Marshal(map[string]any{
				"type":      "result",
				"requestId": a.RequestID,
				"success":   true,
				"data":      map[string]string{"handled": a.Type},
			})
			_ = conn.Write(ctx, websocket.MessageText, reply)
		}
	}()

	out := hub.Bridge().Call(context.Background(), ActionNavigate, NavigatePayload{URL: "https://example.com"}, 0)
	require.True(t, out.Success, out.Error)
	data, ok := out.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ActionNavigate, data["handled"])
}

func TestSurfaceHubPing(t *testing.T) {
	t.Parallel()

	hub := NewSurfaceHub(time.Second, "*", false)
	conn := dialSurface(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}

func TestSurfaceHubWithoutConnection(t *testing.T) {
	t.Parallel()

	hub := NewSurfaceHub(time.Second, "*", false)
	assert.False(t, hub.Connected())
	assert.ErrorIs(t, hub.Emit(context.Background(), Action{Type: ActionWait}), ErrNoSurface)

	out := hub.Bridge().Call(context.Background(), ActionWait, WaitPayload{MS: 1}, 0)
	assert.False(t, out.Success)
	assert.Equal(t, ErrNoSurface.Error(), out.Error)
}

func TestSurfaceHubRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	hub := NewSurfaceHub(time.Second, "http://localhost:5173", false)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Origin": {"http://evil.test"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 403, resp.StatusCode)
	}
}
