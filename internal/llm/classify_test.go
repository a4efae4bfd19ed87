package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"refused", errors.New(`Post "http://localhost:11434/v1/chat/completions": dial tcp 127.0.0.1:11434: connect: connection refused`), FailureConnection},
		{"deadline", fmt.Errorf("open completion stream: %w", context.DeadlineExceeded), FailureTimeout},
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, FailureAuth},
		{"missing model", &openai.APIError{HTTPStatusCode: http.StatusNotFound, Message: "model not found"}, FailureModel},
		{"rate limit", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, FailureRateLimit},
		{"request 403", &openai.RequestError{HTTPStatusCode: http.StatusForbidden, Err: errors.New("forbidden")}, FailureAuth},
		{"other", errors.New("something odd"), FailureUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Classify(tc.err)
			assert.Equal(t, tc.kind, h.Kind)
			assert.NotEmpty(t, h.Message)
		})
	}
}

func TestHintRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, Hint{Kind: FailureConnection}.Retryable())
	assert.True(t, Hint{Kind: FailureTimeout}.Retryable())
	assert.False(t, Hint{Kind: FailureAuth}.Retryable())
	assert.False(t, Hint{Kind: FailureUnknown}.Retryable())
}

func TestNewOpenAIModelDefaults(t *testing.T) {
	t.Parallel()

	m, err := NewOpenAIModel(Config{Provider: ProviderOllama})
	assert.NoError(t, err)
	assert.Equal(t, "ollama/llama3.1", m.Name())
	assert.Equal(t, "http://localhost:11434/v1", m.config.BaseURL)

	_, err = NewOpenAIModel(Config{Provider: "mystery"})
	assert.Error(t, err)
}

func TestStreamDisabled(t *testing.T) {
	t.Parallel()

	m, err := NewOpenAIModel(Config{Provider: ProviderOpenAI, APIKey: "k", DisableStream: true})
	assert.NoError(t, err)
	assert.ErrorIs(t, m.Stream(context.Background(), nil, func(string) {}), ErrStreamUnsupported)
}
