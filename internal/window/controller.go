// Package window tracks the presentation shell's windows and pushes window
// commands to the shell over server-sent events.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
)

// ErrWindowNotFound is returned for an unknown window id.
var ErrWindowNotFound = errors.New("window not found")

// ErrUnknownApp is returned when opening an app the shell does not offer.
var ErrUnknownApp = errors.New("unknown app")

// DefaultApps are the applications the shell can open.
var DefaultApps = []string{"browser", "terminal", "files", "notes", "settings", "chat"}

// Shell event names.
const (
	EventOpen  = "window.open"
	EventClose = "window.close"
	EventFocus = "window.focus"
)

// Command is the payload of a window event.
type Command struct {
	WindowID string       `json:"window_id"`
	Window   *tools.Window `json:"window,omitempty"`
}

// Publisher delivers shell events. *Hub implements it.
type Publisher interface {
	Publish(name string, data any) (int64, error)
}

// Controller keeps window state in stacking order, topmost last, and
// publishes every change.
type Controller struct {
	pub  Publisher
	apps map[string]bool

	mu      sync.Mutex
	windows []tools.Window
	seq     int
}

var _ tools.WindowController = (*Controller)(nil)

// NewController creates a controller. An empty apps list allows DefaultApps.
func NewController(pub Publisher, apps ...string) *Controller {
	if len(apps) == 0 {
		apps = DefaultApps
	}
	allowed := make(map[string]bool, len(apps))
	for _, a := range apps {
		allowed[a] = true
	}
	return &Controller{pub: pub, apps: allowed}
}

// Open creates a focused window for app.
func (c *Controller) Open(_ context.Context, app, title string) (tools.Window, error) {
	app = strings.ToLower(strings.TrimSpace(app))
	if !c.apps[app] {
		return tools.Window{}, fmt.Errorf("%w: %s", ErrUnknownApp, app)
	}
	if title == "" {
		title = strings.ToUpper(app[:1]) + app[1:]
	}

	c.mu.Lock()
	c.seq++
	win := tools.Window{
		ID:      fmt.Sprintf("%s-%d", app, c.seq),
		App:     app,
		Title:   title,
		Focused: true,
	}
	c.blurAllLocked()
	c.windows = append(c.windows, win)
	c.mu.Unlock()

	c.publish(EventOpen, Command{WindowID: win.ID, Window: &win})
	return win, nil
}

// Close removes a window and focuses the next one down.
func (c *Controller) Close(_ context.Context, id string) error {
	if err := c.remove(id); err != nil {
		return err
	}
	c.publish(EventClose, Command{WindowID: id})
	return nil
}

// Focus raises a window to the top.
func (c *Controller) Focus(_ context.Context, id string) error {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	win := c.windows[i]
	c.windows = append(c.windows[:i], c.windows[i+1:]...)
	c.blurAllLocked()
	win.Focused = true
	win.Minimized = false
	c.windows = append(c.windows, win)
	c.mu.Unlock()

	c.publish(EventFocus, Command{WindowID: id, Window: &win})
	return nil
}

// List returns the windows in stacking order.
func (c *Controller) List(_ context.Context) ([]tools.Window, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]tools.Window, len(c.windows))
	copy(out, c.windows)
	return out, nil
}

// Closed records a window the user closed in the shell. Nothing is
// published back.
func (c *Controller) Closed(id string) error {
	return c.remove(id)
}

// Minimized records a window the user minimized in the shell.
func (c *Controller) Minimized(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	c.windows[i].Minimized = true
	c.windows[i].Focused = false
	return nil
}

func (c *Controller) remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	wasFocused := c.windows[i].Focused
	c.windows = append(c.windows[:i], c.windows[i+1:]...)
	if wasFocused {
		for j := len(c.windows) - 1; j >= 0; j-- {
			if !c.windows[j].Minimized {
				c.windows[j].Focused = true
				break
			}
		}
	}
	return nil
}

func (c *Controller) indexLocked(id string) int {
	for i, w := range c.windows {
		if w.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) blurAllLocked() {
	for i := range c.windows {
		c.windows[i].Focused = false
	}
}

func (c *Controller) publish(name string, cmd Command) {
	if c.pub == nil {
		return
	}
	if _, err := c.pub.Publish(name, cmd); err != nil {
		slog.Warn("Failed to publish window event", "event", name, "window_id", cmd.WindowID, "error", err)
	}
}
