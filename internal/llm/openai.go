package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderOllama   = "ollama"
)

var defaultBaseURLs = map[string]string{
	ProviderOpenAI:   "https://api.openai.com/v1",
	ProviderDeepSeek: "https://api.deepseek.com/v1",
	ProviderOllama:   "http://localhost:11434/v1",
}

var defaultModels = map[string]string{
	ProviderOpenAI:   "gpt-4o-mini",
	ProviderDeepSeek: "deepseek-chat",
	ProviderOllama:   "llama3.1",
}

// Config configures an OpenAI compatible provider.
type Config struct {
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	MaxTokens     int
	Temperature   float32
	MaxRetries    int
	DisableStream bool
}

// OpenAIModel talks to any OpenAI compatible chat completion endpoint.
type OpenAIModel struct {
	client *openai.Client
	config Config
}

// NewOpenAIModel creates a model client, filling provider defaults.
func NewOpenAIModel(cfg Config) (*OpenAIModel, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	base, ok := defaultBaseURLs[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = base
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.APIKey == "" && cfg.Provider != ProviderOllama {
		slog.Warn("LLM API key is empty", "provider", cfg.Provider)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &OpenAIModel{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Name returns "<provider>/<model>".
func (m *OpenAIModel) Name() string {
	return m.config.Provider + "/" + m.config.Model
}

func (m *OpenAIModel) request(messages []domain.Message, stream bool) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return openai.ChatCompletionRequest{
		Model:       m.config.Model,
		Messages:    out,
		MaxTokens:   m.config.MaxTokens,
		Temperature: m.config.Temperature,
		Stream:      stream,
	}
}

// Stream implements Model.
func (m *OpenAIModel) Stream(ctx context.Context, messages []domain.Message, onChunk func(string)) error {
	if m.config.DisableStream {
		return ErrStreamUnsupported
	}

	stream, err := m.client.CreateChatCompletionStream(ctx, m.request(messages, true))
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(apiErr.Message), "stream") {
			return fmt.Errorf("%w: %s", ErrStreamUnsupported, apiErr.Message)
		}
		return fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read completion stream: %w", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				onChunk(choice.Delta.Content)
			}
		}
	}
}

// Chat implements Model. Transient failures are retried with backoff.
func (m *OpenAIModel) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	var result string
	err := m.doWithRetry(ctx, func() error {
		resp, err := m.client.CreateChatCompletion(ctx, m.request(messages, false))
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("complete chat: %w", err)
	}
	return result, nil
}

func (m *OpenAIModel) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < m.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Classify(lastErr).Retryable() || attempt == m.config.MaxRetries-1 {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		slog.Debug("LLM request failed, retrying", "attempt", attempt+1, "wait_time", wait, "error", lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
