package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

func newFakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"stream":true`) {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, part := range []string{"Hel", "lo"} {
				_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
			}
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIModelStreamAndChat(t *testing.T) {
	t.Parallel()

	srv := newFakeProvider(t)
	m, err := NewOpenAIModel(Config{Provider: ProviderOpenAI, APIKey: "test", BaseURL: srv.URL + "/v1", Model: "m"})
	require.NoError(t, err)

	msgs := []domain.Message{domain.NewMessage(domain.RoleUser, "hi")}

	var chunks []string
	require.NoError(t, m.Stream(context.Background(), msgs, func(s string) { chunks = append(chunks, s) }))
	assert.Equal(t, []string{"Hel", "lo"}, chunks)

	reply, err := m.Chat(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
}
