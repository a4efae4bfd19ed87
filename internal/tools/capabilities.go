package tools

import (
	"context"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/bridge"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// FileInfo describes one workspace entry.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// FileSystem is the workspace file access handed to tools. Missing paths
// are reported with errors matching fs.ErrNotExist.
type FileSystem interface {
	List(path string) ([]FileInfo, error)
	Read(path string) (string, error)
	Write(path, content string) error
	Mkdir(path string) error
	Remove(path string) error
}

// ProcessResult is the outcome of one shell command.
type ProcessResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ProcessRunner spawns shell commands.
type ProcessRunner interface {
	Run(ctx context.Context, command, cwd string) (ProcessResult, error)
}

// Window is an application window in the presentation shell.
type Window struct {
	ID        string `json:"id"`
	App       string `json:"app"`
	Title     string `json:"title"`
	Focused   bool   `json:"focused"`
	Minimized bool   `json:"minimized,omitempty"`
}

// WindowController opens, closes and focuses shell windows.
type WindowController interface {
	Open(ctx context.Context, app, title string) (Window, error)
	Close(ctx context.Context, id string) error
	Focus(ctx context.Context, id string) error
	List(ctx context.Context) ([]Window, error)
}

// ActionSender sends an action to the browsing surface and awaits its
// result. *bridge.Bridge implements it.
type ActionSender interface {
	Call(ctx context.Context, actionType string, payload any, timeout time.Duration) bridge.Outcome
}

// MemoryStore is the agent's persistent key/value memory.
type MemoryStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}

// ExecLogger receives execution log lines. *timeline.ExecLog implements it.
type ExecLogger interface {
	Append(typ domain.LogType, message string)
}

// Capabilities is the explicit bundle passed to every handler.
// Nil members mean the capability is unavailable.
type Capabilities struct {
	Files     FileSystem
	Processes ProcessRunner
	Windows   WindowController
	Browser   ActionSender
	Memory    MemoryStore
	Log       ExecLogger
}

func (c *Capabilities) log(typ domain.LogType, message string) {
	if c != nil && c.Log != nil {
		c.Log.Append(typ, message)
	}
}
