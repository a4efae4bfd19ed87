package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// FailureKind groups transport failures by what the user can do about them.
type FailureKind string

const (
	FailureConnection FailureKind = "connection"
	FailureAuth       FailureKind = "auth"
	FailureModel      FailureKind = "model"
	FailureRateLimit  FailureKind = "rate_limit"
	FailureTimeout    FailureKind = "timeout"
	FailureUnknown    FailureKind = "unknown"
)

// Hint is a classified transport failure.
type Hint struct {
	Kind    FailureKind
	Message string
}

// Retryable reports whether a retry may succeed.
func (h Hint) Retryable() bool {
	switch h.Kind {
	case FailureConnection, FailureRateLimit, FailureTimeout:
		return true
	default:
		return false
	}
}

var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"network is unreachable",
	"no such host",
	"temporary failure",
	"dial tcp",
	"connection lost",
}

var timeoutPatterns = []string{
	"timeout",
	"deadline exceeded",
	"operation timed out",
}

// Classify maps a model transport error to a user facing hint.
func Classify(err error) Hint {
	if err == nil {
		return Hint{Kind: FailureUnknown}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Hint{FailureAuth, "check the API key"}
		case http.StatusNotFound:
			return Hint{FailureModel, "check the model name"}
		case http.StatusTooManyRequests:
			return Hint{FailureRateLimit, "the provider is rate limiting requests, try again shortly"}
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Hint{FailureAuth, "check the API key"}
		case http.StatusNotFound:
			return Hint{FailureModel, "check the model name"}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Hint{FailureTimeout, "the provider took too long to respond"}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range timeoutPatterns {
		if strings.Contains(msg, p) {
			return Hint{FailureTimeout, "the provider took too long to respond"}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Hint{FailureConnection, "check the model provider is running and reachable"}
	}
	for _, p := range connectionPatterns {
		if strings.Contains(msg, p) {
			return Hint{FailureConnection, "check the model provider is running and reachable"}
		}
	}

	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "api key"):
		return Hint{FailureAuth, "check the API key"}
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return Hint{FailureModel, "check the model name"}
	}
	return Hint{FailureUnknown, "check the model provider settings"}
}
