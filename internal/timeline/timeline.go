// Package timeline records the steps of one assistant turn.
package timeline

import (
	"slices"
	"sync"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// EventType distinguishes appends from patches.
type EventType string

const (
	EventAppend EventType = "append"
	EventPatch  EventType = "patch"
)

// Event is delivered to listeners after every change, carrying the
// entry as it looks after the change.
type Event struct {
	Type  EventType        `json:"type"`
	Entry domain.StepEntry `json:"entry"`
}

// Listener observes timeline changes.
type Listener func(Event)

// Option sets optional fields on a new entry.
type Option func(*domain.StepEntry)

// WithBody attaches a body to the entry.
func WithBody(body string) Option {
	return func(e *domain.StepEntry) { e.Body = body }
}

// WithDetail attaches a detail line to the entry.
func WithDetail(detail string) Option {
	return func(e *domain.StepEntry) { e.Detail = detail }
}

// WithTool records the tool the entry belongs to.
func WithTool(tool string) Option {
	return func(e *domain.StepEntry) { e.Tool = tool }
}

// Timeline is an append/patch log scoped to a single turn.
// Entries are never removed and keep insertion order.
type Timeline struct {
	mu        sync.RWMutex
	entries   []domain.StepEntry
	index     map[int]int
	nextID    int
	listeners map[int]Listener
	nextSub   int
	now       func() time.Time
}

// New creates an empty timeline.
func New() *Timeline {
	return &Timeline{
		index:     make(map[int]int),
		nextID:    1,
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// AddStep appends an entry and returns its id. Ids start at 1.
func (t *Timeline) AddStep(kind domain.StepKind, text string, opts ...Option) int {
	t.mu.Lock()
	entry := domain.StepEntry{
		ID:   t.nextID,
		Kind: kind,
		Text: text,
		At:   t.now(),
	}
	for _, opt := range opts {
		opt(&entry)
	}
	t.nextID++
	t.index[entry.ID] = len(t.entries)
	t.entries = append(t.entries, entry)
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	notify(listeners, Event{Type: EventAppend, Entry: entry})
	return entry.ID
}

// PatchStep merges patch into the entry with the given id. It returns
// false when the id is unknown or when the patch would replace one
// terminal kind with another.
func (t *Timeline) PatchStep(id int, patch domain.StepPatch) bool {
	t.mu.Lock()
	pos, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	entry := &t.entries[pos]
	if patch.Kind != nil && entry.Kind.Terminal() && patch.Kind.Terminal() {
		t.mu.Unlock()
		return false
	}
	if patch.Kind != nil {
		entry.Kind = *patch.Kind
	}
	if patch.Text != nil {
		entry.Text = *patch.Text
	}
	if patch.Body != nil {
		entry.Body = *patch.Body
	}
	if patch.Detail != nil {
		entry.Detail = *patch.Detail
	}
	updated := *entry
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	notify(listeners, Event{Type: EventPatch, Entry: updated})
	return true
}

// Entries returns a copy of all entries in insertion order.
func (t *Timeline) Entries() []domain.StepEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.StepEntry(nil), t.entries...)
}

// Active returns the entries still in progress.
func (t *Timeline) Active() []domain.StepEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.StepEntry
	for _, e := range t.entries {
		if e.Kind.Active() {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry with the given id.
func (t *Timeline) Get(id int) (domain.StepEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.index[id]
	if !ok {
		return domain.StepEntry{}, false
	}
	return t.entries[pos], true
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Subscribe registers l for future events and returns a function that
// removes it. Listeners run on the goroutine that changed the timeline.
func (t *Timeline) Subscribe(l Listener) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.listeners[id] = l
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Timeline) snapshotListeners() []Listener {
	if len(t.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = t.listeners[id]
	}
	return out
}

func notify(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}

// Kind returns a pointer to k, for building patches.
func Kind(k domain.StepKind) *domain.StepKind { return &k }

// Text returns a pointer to s, for building patches.
func Text(s string) *string { return &s }
