// Package llmtest provides a deterministic llm.Model for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/llm"
)

// DefaultChunkSize is the number of bytes per streamed chunk.
const DefaultChunkSize = 8

// Step scripts one generation pass.
type Step struct {
	// Text is streamed in chunks, or returned whole by Chat.
	Text string
	// Err is returned after Text has been streamed.
	Err error
	// Block waits for cancellation after streaming Text.
	Block bool
	// NoStream makes Stream report llm.ErrStreamUnsupported so the caller
	// falls back to Chat for this step.
	NoStream bool
}

// Reply is a step that streams text and ends normally.
func Reply(text string) Step {
	return Step{Text: text}
}

// ScriptedModel replays steps in order, one per generation pass.
type ScriptedModel struct {
	mu          sync.Mutex
	index       int
	steps       []Step
	chunkSize   int
	transcripts [][]domain.Message
}

var _ llm.Model = (*ScriptedModel)(nil)

// New creates a model that replays steps.
func New(steps ...Step) *ScriptedModel {
	cloned := make([]Step, len(steps))
	copy(cloned, steps)
	return &ScriptedModel{steps: cloned, chunkSize: DefaultChunkSize}
}

// WithChunkSize changes how many bytes are emitted per chunk.
func (m *ScriptedModel) WithChunkSize(n int) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.chunkSize = n
	}
	return m
}

func (m *ScriptedModel) next(messages []domain.Message, consume bool) (Step, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.index >= len(m.steps) {
		return Step{}, 0, fmt.Errorf("script exhausted at step %d", m.index+1)
	}
	step := m.steps[m.index]
	if consume {
		m.index++
		m.transcripts = append(m.transcripts, append([]domain.Message(nil), messages...))
	}
	return step, m.chunkSize, nil
}

// Stream implements llm.Model.
func (m *ScriptedModel) Stream(ctx context.Context, messages []domain.Message, onChunk func(string)) error {
	step, size, err := m.next(messages, false)
	if err != nil {
		return err
	}
	if step.NoStream {
		return llm.ErrStreamUnsupported
	}
	if _, _, err := m.next(messages, true); err != nil {
		return err
	}

	for _, chunk := range split(step.Text, size) {
		if err := ctx.Err(); err != nil {
			return err
		}
		onChunk(chunk)
	}
	if step.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return step.Err
}

// Chat implements llm.Model.
func (m *ScriptedModel) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	step, _, err := m.next(messages, true)
	if err != nil {
		return "", err
	}
	if step.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Text, nil
}

// Calls returns the number of consumed steps.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Transcripts returns the messages received by each consumed step.
func (m *ScriptedModel) Transcripts() [][]domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.Message(nil), m.transcripts...)
}

func split(s string, size int) []string {
	var out []string
	for len(s) > 0 {
		n := min(size, len(s))
		for n < len(s) && !utf8.RuneStart(s[n]) {
			n++
		}
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}
