package window

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Event is one message pushed to the presentation shell.
type Event struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// ReplayQueue keeps the most recent events so a reconnecting shell can
// catch up from its Last-Event-ID.
type ReplayQueue struct {
	mu      sync.RWMutex
	events  *list.List
	maxSize int
}

// NewReplayQueue creates a queue holding at most maxSize events.
func NewReplayQueue(maxSize int) *ReplayQueue {
	if maxSize <= 0 {
		maxSize = 100 // Default: keep last 100 events
	}
	return &ReplayQueue{events: list.New(), maxSize: maxSize}
}

// Enqueue appends an event, evicting the oldest beyond capacity.
func (q *ReplayQueue) Enqueue(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events.PushBack(ev)
	for q.events.Len() > q.maxSize {
		q.events.Remove(q.events.Front())
	}
}

// After returns the queued events with an id greater than afterID.
func (q *ReplayQueue) After(afterID int64) []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var missed []Event
	for e := q.events.Front(); e != nil; e = e.Next() {
		if ev := e.Value.(Event); ev.ID > afterID {
			missed = append(missed, ev)
		}
	}
	return missed
}

// Len reports the number of queued events.
func (q *ReplayQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.events.Len()
}

// DefaultWriteTimeout bounds a single write to a shell stream.
const DefaultWriteTimeout = 5 * time.Second

// streamConn is one connected shell.
type streamConn struct {
	id           int64
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	done         chan struct{}
	mu           sync.Mutex
	lastID       int64
	broken       bool
}

func newStreamConn(w http.ResponseWriter, writeTimeout time.Duration) *streamConn {
	return &streamConn{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// writeLocked writes and flushes under a write deadline so a stalled
// client cannot block publishers. Callers hold c.mu.
func (c *streamConn) writeLocked(write func(io.Writer) error) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if err := write(c.w); err != nil {
		return err
	}
	if err := c.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (c *streamConn) markBrokenLocked() {
	if !c.broken {
		c.broken = true
		close(c.done)
	}
}

func (c *streamConn) send(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken || ev.ID <= c.lastID {
		return
	}
	err := c.writeLocked(func(w io.Writer) error {
		return writeSSEWithID(w, ev.ID, ev.Name, string(ev.Data))
	})
	if err != nil {
		slog.Warn("Failed to write to shell stream", "error", err, "conn_id", c.id)
		c.markBrokenLocked()
		return
	}
	c.lastID = ev.ID
}

// sendRaw writes an unnumbered event such as "connected" or "ping".
func (c *streamConn) sendRaw(event, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("stream closed")
	}
	err := c.writeLocked(func(w io.Writer) error { return writeSSE(w, event, data) })
	if err != nil {
		c.markBrokenLocked()
	}
	return err
}

// Hub fans events out to every connected shell stream.
type Hub struct {
	queue        *ReplayQueue
	keepalive    time.Duration
	retry        time.Duration
	writeTimeout time.Duration

	mu      sync.RWMutex
	conns   map[int64]*streamConn
	eventID int64
	connID  int64
}

// NewHub creates a hub. Zero durations fall back to 15s keepalive and 5s
// client retry.
func NewHub(queueSize int, keepalive, retry time.Duration) *Hub {
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Hub{
		queue:        NewReplayQueue(queueSize),
		keepalive:    keepalive,
		retry:        retry,
		writeTimeout: DefaultWriteTimeout,
		conns:        make(map[int64]*streamConn),
	}
}

// Publish assigns the next event id, queues the event for replay and sends
// it to every connected shell.
func (h *Hub) Publish(name string, data any) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal %s event: %w", name, err)
	}

	h.mu.Lock()
	h.eventID++
	ev := Event{ID: h.eventID, Name: name, Data: raw, At: time.Now()}
	// Enqueue under the lock so replay order matches id order.
	h.queue.Enqueue(ev)
	conns := make([]*streamConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.send(ev)
	}
	return ev.ID, nil
}

// Connections reports how many shells are connected.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeHTTP streams shell events. Reconnecting clients pass Last-Event-ID
// (header or lastEventId query) and receive what they missed first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	conn := newStreamConn(w, h.writeTimeout)
	conn.mu.Lock()
	err := conn.writeLocked(func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "retry: %d\n\n", h.retry.Milliseconds())
		return err
	})
	conn.mu.Unlock()
	if err != nil {
		slog.Warn("failed to write SSE retry header", "error", err)
		return
	}

	// Hold the hub lock while replaying so no live event can interleave.
	h.mu.Lock()
	h.connID++
	conn.id = h.connID
	current := h.eventID
	var missed []Event
	if lastEventID > 0 {
		missed = h.queue.After(lastEventID)
		for _, ev := range missed {
			conn.send(ev)
		}
	}
	conn.mu.Lock()
	if conn.lastID < current {
		conn.lastID = current
	}
	conn.mu.Unlock()
	h.conns[conn.id] = conn
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn.id)
		h.mu.Unlock()
		// A Publish holding a stale snapshot must not write after return.
		conn.mu.Lock()
		conn.markBrokenLocked()
		_ = conn.rc.SetWriteDeadline(time.Time{})
		conn.mu.Unlock()
		slog.Info("Shell stream closed", "conn_id", conn.id)
	}()

	slog.Info("Shell stream connected",
		"conn_id", conn.id,
		"last_event_id", lastEventID,
		"replayed", len(missed),
	)

	if err := conn.sendRaw("connected", fmt.Sprintf(`{"status":"connected","event_id":%d}`, current)); err != nil {
		slog.Warn("failed to write SSE connected event", "error", err)
		return
	}

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.done:
			return
		case <-keepalive.C:
			if err := conn.sendRaw("ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "conn_id", conn.id)
				return
			}
		}
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
