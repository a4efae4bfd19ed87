package tools_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/bridge"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/workspace"
)

type fakeRunner struct {
	res tools.ProcessResult
	err error
	cmd string
}

func (f *fakeRunner) Run(_ context.Context, command, _ string) (tools.ProcessResult, error) {
	f.cmd = command
	return f.res, f.err
}

type mapMemory struct {
	mu sync.Mutex
	m  map[string]string
}

func (m *mapMemory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	return v, ok, nil
}

func (m *mapMemory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
	return nil
}

func (m *mapMemory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
	return nil
}

func (m *mapMemory) All(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out, nil
}

type fakeBrowser struct {
	lastType    string
	lastPayload any
	out         bridge.Outcome
}

func (f *fakeBrowser) Call(_ context.Context, actionType string, payload any, _ time.Duration) bridge.Outcome {
	f.lastType = actionType
	f.lastPayload = payload
	return f.out
}

func run(t *testing.T, caps *tools.Capabilities, tool string, args map[string]any) domain.ToolResult {
	t.Helper()
	d := tools.NewDispatcher(tools.NewDefaultRegistry(), 2*time.Second)
	return d.Execute(context.Background(), domain.ToolCall{Tool: tool, Args: args}, caps)
}

func TestFileTools(t *testing.T) {
	t.Parallel()

	caps := &tools.Capabilities{Files: workspace.NewWithFs(afero.NewMemMapFs())}

	res := run(t, caps, "write_file", map[string]any{"path": "/ws/notes.txt", "content": "hello"})
	require.True(t, res.Success, res.Message)

	res = run(t, caps, "list_files", map[string]any{"path": "/ws"})
	require.True(t, res.Success, res.Message)
	data := res.Data.(map[string]any)
	entries := data["entries"].([]tools.FileInfo)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name)

	res = run(t, caps, "read_file", map[string]any{"path": "/ws/notes.txt"})
	require.True(t, res.Success)
	assert.Equal(t, "hello", res.Data.(map[string]any)["content"])

	res = run(t, caps, "create_directory", map[string]any{"path": "/ws/sub"})
	assert.True(t, res.Success)

	res = run(t, caps, "delete_file", map[string]any{"path": "/ws/notes.txt"})
	assert.True(t, res.Success)
}

func TestFileToolsMissingPath(t *testing.T) {
	t.Parallel()

	caps := &tools.Capabilities{Files: workspace.NewWithFs(afero.NewMemMapFs())}

	res := run(t, caps, "read_file", map[string]any{"path": "/nope.txt"})
	assert.False(t, res.Success)
	assert.Equal(t, "ENOENT: /nope.txt", res.Message)

	res = run(t, caps, "read_file", map[string]any{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, `"path" is required`)

	res = run(t, &tools.Capabilities{}, "list_files", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "file access is not available", res.Message)
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{res: tools.ProcessResult{Stdout: "hi\n"}}
	res := run(t, &tools.Capabilities{Processes: runner}, "run_command", map[string]any{"command": "echo hi"})
	assert.True(t, res.Success)
	assert.Equal(t, "echo hi", runner.cmd)

	runner = &fakeRunner{res: tools.ProcessResult{ExitCode: 2, Stderr: "boom"}}
	res = run(t, &tools.Capabilities{Processes: runner}, "run_command", map[string]any{"command": "false"})
	assert.False(t, res.Success)
	assert.Equal(t, "Command exited with code 2: boom", res.Message)

	runner = &fakeRunner{err: errors.New("sandbox gone")}
	res = run(t, &tools.Capabilities{Processes: runner}, "run_command", map[string]any{"command": "ls"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Tool exception:")
	assert.Contains(t, res.Message, "sandbox gone")
}

func TestMemoryTools(t *testing.T) {
	t.Parallel()

	caps := &tools.Capabilities{Memory: &mapMemory{m: map[string]string{}}}

	require.True(t, run(t, caps, "remember", map[string]any{"key": "city", "value": "Cairo"}).Success)

	res := run(t, caps, "recall", map[string]any{"key": "city"})
	require.True(t, res.Success)
	assert.Equal(t, "city = Cairo", res.Message)

	res = run(t, caps, "recall", nil)
	require.True(t, res.Success)
	assert.Equal(t, map[string]string{"city": "Cairo"}, res.Data)

	require.True(t, run(t, caps, "forget", map[string]any{"key": "city"}).Success)
	assert.False(t, run(t, caps, "recall", map[string]any{"key": "city"}).Success)
}

func TestWaitTool(t *testing.T) {
	t.Parallel()

	res := run(t, nil, "wait", map[string]any{"ms": float64(5)})
	assert.True(t, res.Success)

	res = run(t, nil, "wait", map[string]any{"ms": "soon"})
	assert.False(t, res.Success)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := tools.NewDispatcher(tools.NewDefaultRegistry(), time.Second)
	res = d.Execute(ctx, domain.ToolCall{Tool: "wait", Args: map[string]any{"ms": 10000}}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "wait interrupted")
}

func TestWaitToolClampsHugeDurations(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d := tools.NewDispatcher(tools.NewDefaultRegistry(), time.Second)
	res := d.Execute(ctx, domain.ToolCall{Tool: "wait", Args: map[string]any{"ms": float64(1e13)}}, nil)

	assert.False(t, res.Success, "a clamped wait cannot finish within the deadline")
	assert.Contains(t, res.Message, "wait interrupted")
	assert.NotContains(t, res.Message, "Waited -")
}

func TestBrowserTools(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{out: bridge.Outcome{Success: true, Data: "ok"}}
	caps := &tools.Capabilities{Browser: browser}

	res := run(t, caps, "browser_navigate", map[string]any{"url": "example.com", "wait_for_load": true})
	require.True(t, res.Success)
	assert.Equal(t, bridge.ActionNavigateAndWait, browser.lastType)
	assert.Equal(t, bridge.NavigatePayload{URL: "https://example.com"}, browser.lastPayload)

	res = run(t, caps, "browser_scrape", map[string]any{"mode": "links"})
	require.True(t, res.Success)
	assert.Equal(t, bridge.ActionScrapeLinks, browser.lastType)

	res = run(t, caps, "browser_scrape", map[string]any{"mode": "pdf"})
	assert.False(t, res.Success)

	res = run(t, caps, "browser_click", map[string]any{"x": 10, "y": 20.5})
	require.True(t, res.Success)
	click := browser.lastPayload.(bridge.ClickPayload)
	assert.InDelta(t, 20.5, *click.Y, 0.001)

	res = run(t, caps, "browser_click", map[string]any{"x": 10})
	assert.False(t, res.Success)

	res = run(t, caps, "browser_type", map[string]any{"selector": "#q", "text": "go", "clear": true})
	require.True(t, res.Success)
	assert.Equal(t, bridge.TypePayload{Selector: "#q", Text: "go", Clear: true}, browser.lastPayload)

	res = run(t, caps, "browser_scroll", nil)
	require.True(t, res.Success)
	assert.Equal(t, bridge.ScrollPayload{DY: 600}, browser.lastPayload)

	res = run(t, caps, "browser_navigate", map[string]any{"url": "ftp://example.com"})
	assert.False(t, res.Success)
}

func TestBrowserToolFailures(t *testing.T) {
	t.Parallel()

	res := run(t, &tools.Capabilities{}, "browser_eval", map[string]any{"script": "1+1"})
	assert.False(t, res.Success)
	assert.Equal(t, "no active browser surface", res.Message)

	browser := &fakeBrowser{out: bridge.Outcome{TimedOut: true, Error: "wait_for_selector timed out after 7s"}}
	res = run(t, &tools.Capabilities{Browser: browser}, "browser_wait_for", map[string]any{"selector": "#late", "timeout_ms": 2000})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "timed out")
	assert.Equal(t, bridge.WaitForPayload{Selector: "#late", TimeoutMS: 2000}, browser.lastPayload)

	browser = &fakeBrowser{out: bridge.Outcome{Error: "element not found"}}
	res = run(t, &tools.Capabilities{Browser: browser}, "browser_submit", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "Browser action submit failed: element not found", res.Message)
}
