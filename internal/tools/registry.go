// Package tools holds the tool registry, the dispatcher and the built-in
// tools the agent can call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

var (
	ErrEmptyToolName = errors.New("tool name is empty")
	ErrDuplicateTool = errors.New("tool already registered")
	ErrNoHandler     = errors.New("tool has no handler")
)

// Param documents one tool argument. It is used to build the prompt
// catalogue and is not validated before dispatch.
type Param struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Handler executes a tool. Input validation is the handler's job: bad
// arguments should produce a failed result, not an error.
type Handler func(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error)

// Tool is a named, documented handler.
type Tool struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Params      map[string]Param `json:"params,omitempty"`
	Handler     Handler          `json:"-"`
}

// Registry maps tool names to tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyToolName
	}
	if t.Handler == nil {
		return fmt.Errorf("register %s: %w", t.Name, ErrNoHandler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("register %s: %w", t.Name, ErrDuplicateTool)
	}
	r.tools[t.Name] = t
	return nil
}

// MustRegister is Register for static tool sets; it panics on error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	tools := r.List()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// Catalogue renders the tool list for the system prompt.
func (r *Registry) Catalogue() string {
	var sb strings.Builder
	for _, t := range r.List() {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
		names := make([]string, 0, len(t.Params))
		for name := range t.Params {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			p := t.Params[name]
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&sb, "    %s (%s, %s)", name, p.Type, req)
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
