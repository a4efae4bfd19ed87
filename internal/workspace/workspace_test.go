package workspace

import (
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":              "/",
		".":             "/",
		"/":             "/",
		"notes.txt":     "/notes.txt",
		"/ws/a/../b.md": "/ws/b.md",
		"~/docs":        "/docs",
		"a\\b.txt":      "/a/b.txt",
	}
	for in, want := range cases {
		got, err := Resolve(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Resolve("../etc/passwd")
	assert.ErrorIs(t, err, ErrPathOutsideWorkspace)
}

func TestWorkspaceFileLifecycle(t *testing.T) {
	t.Parallel()

	ws := NewWithFs(afero.NewMemMapFs())

	require.NoError(t, ws.Write("project/readme.md", "# hello"))
	require.NoError(t, ws.Mkdir("project/src"))

	entries, err := ws.List("project")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "readme.md", entries[0].Name)
	assert.Equal(t, "/project/readme.md", entries[0].Path)
	assert.True(t, entries[1].IsDir)

	content, err := ws.Read("/project/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "# hello", content)

	_, err = ws.Read("project")
	assert.ErrorIs(t, err, ErrIsDirectory)

	require.NoError(t, ws.Remove("project/readme.md"))
	_, err = ws.Read("project/readme.md")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWorkspaceMissingPaths(t *testing.T) {
	t.Parallel()

	ws := NewWithFs(afero.NewMemMapFs())

	_, err := ws.List("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, ws.Remove("nope.txt"), fs.ErrNotExist)
	assert.ErrorIs(t, ws.Remove("/"), ErrWorkspaceRoot)
}

func TestNewCreatesRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir() + "/workspace"
	ws, err := New(root)
	require.NoError(t, err)

	require.NoError(t, ws.Write("a.txt", "x"))
	content, err := ws.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", content)
}
