package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// DefaultToolTimeout bounds a single handler invocation.
const DefaultToolTimeout = 60 * time.Second

// Dispatcher resolves tool calls against a Registry and normalizes
// every outcome into a ToolResult. It never returns an error and never
// panics.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. A non-positive timeout selects
// DefaultToolTimeout.
func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Dispatcher{registry: registry, timeout: timeout}
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Execute runs call with the given capabilities.
func (d *Dispatcher) Execute(ctx context.Context, call domain.ToolCall, caps *Capabilities) (result domain.ToolResult) {
	start := time.Now()
	caps.log(domain.LogAction, fmt.Sprintf("%s %s", call.Tool, truncate(argsJSON(call.Args), 200)))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool handler panicked", "tool", call.Tool, "panic", r)
			result = domain.Fail(fmt.Sprintf("Tool exception: %v", r))
		}
		d.record(call, result, time.Since(start), caps)
	}()

	tool, ok := d.registry.Get(call.Tool)
	if !ok {
		return domain.Fail(fmt.Sprintf("Unknown tool: %s. Available tools: %s",
			call.Tool, strings.Join(d.registry.Names(), ", ")))
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := tool.Handler(callCtx, args, caps)
	if err != nil {
		return domain.Fail(fmt.Sprintf("Tool exception: %v", err))
	}
	return res
}

func (d *Dispatcher) record(call domain.ToolCall, res domain.ToolResult, elapsed time.Duration, caps *Capabilities) {
	if res.Success {
		slog.Debug("Tool call succeeded", "tool", call.Tool, "duration", elapsed)
		caps.log(domain.LogAction, fmt.Sprintf("%s ok: %s", call.Tool, truncate(res.Message, 200)))
		return
	}
	slog.Info("Tool call failed", "tool", call.Tool, "duration", elapsed, "message", truncate(res.Message, 200))
	caps.log(domain.LogError, fmt.Sprintf("%s failed: %s", call.Tool, truncate(res.Message, 200)))
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
