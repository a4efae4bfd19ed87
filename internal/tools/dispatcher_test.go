package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
)

func newTestDispatcher(t *testing.T, extra ...Tool) *Dispatcher {
	t.Helper()
	r := NewRegistry()
	r.MustRegister(extra...)
	return NewDispatcher(r, time.Second)
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Tool{Name: "alpha", Handler: noop}, Tool{Name: "beta", Handler: noop})
	res := d.Execute(context.Background(), domain.ToolCall{Tool: "gamma"}, &Capabilities{})

	assert.False(t, res.Success)
	assert.Equal(t, "Unknown tool: gamma. Available tools: alpha, beta", res.Message)
}

func TestExecuteWrapsHandlerError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Tool{
		Name: "broken",
		Handler: func(context.Context, map[string]any, *Capabilities) (domain.ToolResult, error) {
			return domain.ToolResult{}, errors.New("disk on fire")
		},
	})
	res := d.Execute(context.Background(), domain.ToolCall{Tool: "broken"}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, "Tool exception: disk on fire", res.Message)
}

func TestExecuteRecoversPanic(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Tool{
		Name: "panicky",
		Handler: func(_ context.Context, args map[string]any, _ *Capabilities) (domain.ToolResult, error) {
			_ = args["missing"].(string)
			return domain.OK("unreachable", nil), nil
		},
	})

	var res domain.ToolResult
	require.NotPanics(t, func() {
		res = d.Execute(context.Background(), domain.ToolCall{Tool: "panicky"}, &Capabilities{})
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Tool exception:")
}

func TestExecutePassesArgsAndDeadline(t *testing.T) {
	t.Parallel()

	var (
		gotArgs     map[string]any
		hadDeadline bool
	)
	d := newTestDispatcher(t, Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args map[string]any, _ *Capabilities) (domain.ToolResult, error) {
			gotArgs = args
			_, hadDeadline = ctx.Deadline()
			return domain.OK("echoed", args), nil
		},
	})

	res := d.Execute(context.Background(), domain.ToolCall{Tool: "echo"}, nil)
	assert.True(t, res.Success)
	assert.NotNil(t, gotArgs)
	assert.True(t, hadDeadline)
}

func TestExecuteWritesExecLog(t *testing.T) {
	t.Parallel()

	log := timeline.NewExecLog(10)
	caps := &Capabilities{Log: log}
	d := newTestDispatcher(t, Tool{Name: "ok", Handler: noop})

	d.Execute(context.Background(), domain.ToolCall{Tool: "ok", Args: map[string]any{"x": 1}}, caps)
	d.Execute(context.Background(), domain.ToolCall{Tool: "nope"}, caps)

	entries := log.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, domain.LogAction, entries[0].Type)
	assert.Equal(t, `ok {"x":1}`, entries[0].Message)
	assert.Equal(t, domain.LogAction, entries[1].Type)
	assert.Equal(t, domain.LogError, entries[3].Type)
}

func TestTruncateKeepsRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "h...", truncate("héllo", 2))
}
