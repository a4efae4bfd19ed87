// Package agent drives the assistant through reasoning and tool-call
// iterations and exposes the chat API.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/llm"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/toolcall"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
)

// ErrorMarker prefixes every final message produced by an error termination.
const ErrorMarker = "⚠️ "

// Defaults for Config.
const (
	DefaultMaxIterations          = 10
	DefaultMaxConsecutiveFailures = 3
	DefaultHistoryWindow          = 10
)

// Outcome names how a turn terminated. Exactly one applies per turn.
type Outcome string

const (
	OutcomeFinal         Outcome = "final"
	OutcomeMaxIterations Outcome = "max_iterations"
	OutcomeFailureAbort  Outcome = "failure_abort"
	OutcomeAborted       Outcome = "aborted"
	OutcomeError         Outcome = "error"
)

// Config bounds a turn.
type Config struct {
	MaxIterations          int
	MaxConsecutiveFailures int
	HistoryWindow          int
	// Instructions are appended to the system prompt.
	Instructions string
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	return c
}

// Observer receives timeline events and live partial output of a turn.
// Calls happen on the goroutine running the turn.
type Observer interface {
	OnStep(ev timeline.Event)
	OnPartial(content string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step    func(timeline.Event)
	Partial func(string)
}

// OnStep implements Observer.
func (o ObserverFuncs) OnStep(ev timeline.Event) {
	if o.Step != nil {
		o.Step(ev)
	}
}

// OnPartial implements Observer.
func (o ObserverFuncs) OnPartial(content string) {
	if o.Partial != nil {
		o.Partial(content)
	}
}

// TurnInput is everything a turn needs besides the controller's collaborators.
type TurnInput struct {
	History     []domain.Message
	UserMessage string
	Context     map[string]string
	Observer    Observer
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	Final      domain.Message       `json:"final"`
	Outcome    Outcome              `json:"outcome"`
	Iterations int                  `json:"iterations"`
	Steps      []domain.StepEntry   `json:"steps"`
	Memory     []domain.MemoryEntry `json:"memory"`
}

// Controller runs turns. It is safe to run turns for different sessions
// concurrently; each turn owns its own timeline, transcript and memory.
type Controller struct {
	model      llm.Model
	dispatcher *tools.Dispatcher
	caps       *tools.Capabilities
	cfg        Config
}

// NewController wires a controller.
func NewController(model llm.Model, dispatcher *tools.Dispatcher, caps *tools.Capabilities, cfg Config) *Controller {
	if caps == nil {
		caps = &tools.Capabilities{}
	}
	return &Controller{
		model:      model,
		dispatcher: dispatcher,
		caps:       caps,
		cfg:        cfg.withDefaults(),
	}
}

// turn is the per-turn state.
type turn struct {
	ctx        context.Context
	in         TurnInput
	tl         *timeline.Timeline
	transcript []domain.Message
	memory     []domain.MemoryEntry
	draft      *draft
	failures   int
	iterations int
}

// RunTurn processes one user message until a termination condition.
func (c *Controller) RunTurn(ctx context.Context, in TurnInput) TurnResult {
	t := &turn{
		ctx:   ctx,
		in:    in,
		tl:    timeline.New(),
		draft: newDraft(),
	}
	if in.Observer != nil {
		unsubscribe := t.tl.Subscribe(in.Observer.OnStep)
		defer unsubscribe()
	}
	t.transcript = c.seed(in)

	start := time.Now()
	c.logExec(domain.LogInfo, "Turn started: "+truncate(in.UserMessage, 120))

	res := c.loop(t)

	res.Iterations = t.iterations
	res.Steps = t.tl.Entries()
	res.Memory = append([]domain.MemoryEntry(nil), t.memory...)

	slog.Info("Agent turn finished",
		"outcome", res.Outcome,
		"iterations", res.Iterations,
		"tool_calls", len(res.Memory),
		"duration", time.Since(start),
	)
	c.logExec(domain.LogInfo, fmt.Sprintf("Turn finished: %s after %d iterations", res.Outcome, res.Iterations))
	return res
}

func (c *Controller) loop(t *turn) TurnResult {
	for t.iterations < c.cfg.MaxIterations {
		if t.ctx.Err() != nil {
			return c.aborted(t)
		}
		t.draft.reset()
		t.iterations++

		stepID := t.tl.AddStep(domain.StepThinking, fmt.Sprintf("Thinking (step %d)", t.iterations))
		text, err := c.generate(t, stepID)
		if err != nil {
			if t.ctx.Err() != nil {
				t.tl.PatchStep(stepID, domain.StepPatch{Kind: timeline.Kind(domain.StepInfo), Text: timeline.Text("Stopped")})
				return c.aborted(t)
			}
			return c.transportFailure(t, stepID, err)
		}

		parsed := toolcall.Parse(text)
		call, ok := toolcall.First(parsed)
		if !ok {
			t.tl.PatchStep(stepID, domain.StepPatch{Kind: timeline.Kind(domain.StepInfo), Text: timeline.Text("Answered")})
			return c.finish(t, OutcomeFinal, parsed.Prose, false)
		}

		t.tl.PatchStep(stepID, domain.StepPatch{
			Kind:   timeline.Kind(domain.StepInfo),
			Text:   timeline.Text("Decided to use " + call.Tool),
			Detail: timeline.Text(truncate(parsed.Prose, 300)),
		})
		if extra := len(parsed.Calls) - 1; extra > 0 {
			t.tl.AddStep(domain.StepInfo, fmt.Sprintf("Ignoring %d additional tool call(s) in this reply", extra))
		}

		result := c.execute(t, call)
		if t.ctx.Err() != nil {
			// the tool saw the abort; it is not a tool failure
			return c.aborted(t)
		}
		t.transcript = append(t.transcript,
			domain.NewMessage(domain.RoleAssistant, text),
			domain.NewMessage(domain.RoleUser, toolResultMessage(call, result, t.memory)),
		)

		if result.Success {
			t.failures = 0
			continue
		}
		t.failures++
		if t.failures >= c.cfg.MaxConsecutiveFailures {
			t.tl.AddStep(domain.StepError, fmt.Sprintf("Stopped after %d consecutive tool failures", t.failures))
			msg := fmt.Sprintf("I stopped after %d consecutive tool failures. Last error: %s", t.failures, result.Message)
			return c.finish(t, OutcomeFailureAbort, msg, true)
		}
	}

	if t.ctx.Err() != nil {
		return c.aborted(t)
	}
	t.tl.AddStep(domain.StepError, fmt.Sprintf("Reached the limit of %d steps", c.cfg.MaxIterations))
	msg := fmt.Sprintf("I reached the limit of %d steps without finishing. Try narrowing the request.", c.cfg.MaxIterations)
	return c.finish(t, OutcomeMaxIterations, msg, true)
}

// generate runs one generation pass and returns the full text.
func (c *Controller) generate(t *turn, stepID int) (string, error) {
	streaming := false
	onChunk := func(chunk string) {
		if t.ctx.Err() != nil {
			return
		}
		t.draft.append(chunk)
		if !streaming {
			streaming = true
			t.tl.PatchStep(stepID, domain.StepPatch{Kind: timeline.Kind(domain.StepStreaming), Text: timeline.Text("Writing")})
		}
		if t.in.Observer != nil {
			t.in.Observer.OnPartial(toolcall.Live(t.draft.text()))
		}
	}

	err := c.model.Stream(t.ctx, t.transcript, onChunk)
	if errors.Is(err, llm.ErrStreamUnsupported) {
		slog.Debug("Model does not stream, falling back to chat")
		var reply string
		reply, err = c.model.Chat(t.ctx, t.transcript)
		if err == nil {
			onChunk(reply)
		}
	}
	if err != nil {
		return "", err
	}
	if t.ctx.Err() != nil {
		return "", t.ctx.Err()
	}
	return t.draft.text(), nil
}

// execute dispatches one call and records it on the timeline and in memory.
func (c *Controller) execute(t *turn, call domain.ToolCall) domain.ToolResult {
	callID := t.tl.AddStep(domain.StepToolCall, "Calling "+call.Tool,
		timeline.WithTool(call.Tool),
		timeline.WithBody(argsJSON(call.Args)),
	)

	result := c.dispatcher.Execute(t.ctx, call, c.caps)

	kind := domain.StepToolSuccess
	if !result.Success {
		kind = domain.StepToolError
	}
	t.tl.PatchStep(callID, domain.StepPatch{
		Kind:   timeline.Kind(kind),
		Detail: timeline.Text(truncate(result.Message, 500)),
	})

	t.memory = append(t.memory, domain.MemoryEntry{
		StepIndex: t.iterations,
		Tool:      call.Tool,
		Args:      call.Args,
		Success:   result.Success,
		Message:   result.Message,
		Data:      result.Data,
	})
	return result
}

func (c *Controller) transportFailure(t *turn, stepID int, err error) TurnResult {
	hint := llm.Classify(err)
	slog.Error("Model request failed", "error", err, "kind", hint.Kind, "iteration", t.iterations)
	t.tl.PatchStep(stepID, domain.StepPatch{
		Kind:   timeline.Kind(domain.StepError),
		Text:   timeline.Text("Model request failed"),
		Detail: timeline.Text(err.Error()),
	})
	msg := fmt.Sprintf("The model request failed: %v. Hint: %s.", err, hint.Message)
	return c.finish(t, OutcomeError, msg, true)
}

func (c *Controller) aborted(t *turn) TurnResult {
	content := toolcall.Live(t.draft.text())
	if content == "" {
		content = "Stopped."
	}
	t.tl.AddStep(domain.StepInfo, "Stopped by user")
	return c.finish(t, OutcomeAborted, content, false)
}

func (c *Controller) finish(t *turn, outcome Outcome, content string, isErr bool) TurnResult {
	if isErr {
		c.logExec(domain.LogError, content)
	}
	return TurnResult{
		Final:   t.draft.promote(content, isErr),
		Outcome: outcome,
	}
}

func (c *Controller) logExec(typ domain.LogType, message string) {
	if c.caps.Log != nil {
		c.caps.Log.Append(typ, message)
	}
}

func argsJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}
