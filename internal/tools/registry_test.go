package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

func noop(context.Context, map[string]any, *Capabilities) (domain.ToolResult, error) {
	return domain.OK("ok", nil), nil
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "b", Description: "second", Handler: noop}))
	require.NoError(t, r.Register(Tool{Name: "a", Description: "first", Handler: noop}))

	assert.ErrorIs(t, r.Register(Tool{Name: "a", Handler: noop}), ErrDuplicateTool)
	assert.ErrorIs(t, r.Register(Tool{Name: " ", Handler: noop}), ErrEmptyToolName)
	assert.ErrorIs(t, r.Register(Tool{Name: "c"}), ErrNoHandler)

	assert.Equal(t, []string{"a", "b"}, r.Names())

	tool, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "second", tool.Description)

	_, ok = r.Get("B")
	assert.False(t, ok)
}

func TestRegistryCatalogue(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister(Tool{
		Name:        "read_file",
		Description: "Read a file.",
		Params: map[string]Param{
			"path":     {Type: "string", Required: true, Description: "file to read"},
			"encoding": {Type: "string"},
		},
		Handler: noop,
	})

	cat := r.Catalogue()
	assert.Contains(t, cat, "- read_file: Read a file.")
	assert.Contains(t, cat, "path (string, required): file to read")
	assert.Contains(t, cat, "encoding (string, optional)")
	assert.Less(t, strings.Index(cat, "encoding"), strings.Index(cat, "path ("))
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	for _, name := range []string{
		"list_files", "read_file", "write_file", "create_directory", "delete_file",
		"run_command", "wait", "open_app", "close_window", "focus_window", "list_windows",
		"remember", "recall", "forget",
		"browser_navigate", "browser_scrape", "browser_click", "browser_type", "browser_submit",
		"browser_key", "browser_scroll", "browser_eval", "browser_wait_for", "browser_wait",
	} {
		_, ok := r.Get(name)
		assert.True(t, ok, name)
	}
}
