// Package llm adapts chat model providers to the agent loop.
package llm

import (
	"context"
	"errors"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// ErrStreamUnsupported tells the caller to fall back to Chat.
var ErrStreamUnsupported = errors.New("streaming is not supported by this provider")

// Model is an opaque text generator.
type Model interface {
	// Stream generates a reply and delivers it in chunks. It returns when
	// generation ends or ctx is cancelled.
	Stream(ctx context.Context, messages []domain.Message, onChunk func(string)) error
	// Chat generates a complete reply in one call.
	Chat(ctx context.Context, messages []domain.Message) (string, error)
}
