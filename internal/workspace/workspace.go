// Package workspace exposes the agent's sandboxed file area.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
)

var (
	ErrPathOutsideWorkspace = errors.New("path is outside the workspace")
	ErrIsDirectory          = errors.New("path is a directory")
	ErrWorkspaceRoot        = errors.New("refusing to modify the workspace root")
)

// Workspace implements tools.FileSystem on top of an afero.Fs rooted at
// the workspace directory.
type Workspace struct {
	fs afero.Fs
}

// New opens the workspace at root, creating the directory if needed.
func New(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// NewWithFs wraps an existing file system, e.g. afero.NewMemMapFs in tests.
func NewWithFs(fs afero.Fs) *Workspace {
	return &Workspace{fs: fs}
}

// Fs returns the underlying file system.
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Resolve maps a user supplied path to a clean absolute path inside the
// workspace. Leading "~/" and "/" both refer to the workspace root.
func Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "~")
	p = strings.ReplaceAll(p, "\\", "/")
	rel := path.Clean(strings.TrimLeft(p, "/"))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s: %w", p, ErrPathOutsideWorkspace)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + rel, nil
}

// List implements tools.FileSystem.
func (w *Workspace) List(p string) ([]tools.FileInfo, error) {
	dir, err := Resolve(p)
	if err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		return nil, err
	}
	out := make([]tools.FileInfo, 0, len(infos))
	for _, fi := range infos {
		out = append(out, tools.FileInfo{
			Name:    fi.Name(),
			Path:    path.Join(dir, fi.Name()),
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	return out, nil
}

// Read implements tools.FileSystem.
func (w *Workspace) Read(p string) (string, error) {
	file, err := Resolve(p)
	if err != nil {
		return "", err
	}
	fi, err := w.fs.Stat(file)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", fmt.Errorf("%s: %w", p, ErrIsDirectory)
	}
	data, err := afero.ReadFile(w.fs, file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write implements tools.FileSystem. Missing parent directories are created.
func (w *Workspace) Write(p, content string) error {
	file, err := Resolve(p)
	if err != nil {
		return err
	}
	if file == "/" {
		return ErrWorkspaceRoot
	}
	if err := w.fs.MkdirAll(path.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	return afero.WriteFile(w.fs, file, []byte(content), 0o644)
}

// Mkdir implements tools.FileSystem.
func (w *Workspace) Mkdir(p string) error {
	dir, err := Resolve(p)
	if err != nil {
		return err
	}
	return w.fs.MkdirAll(dir, 0o755)
}

// Remove implements tools.FileSystem.
func (w *Workspace) Remove(p string) error {
	target, err := Resolve(p)
	if err != nil {
		return err
	}
	if target == "/" {
		return ErrWorkspaceRoot
	}
	if _, err := w.fs.Stat(target); err != nil {
		return err
	}
	return w.fs.Remove(target)
}
