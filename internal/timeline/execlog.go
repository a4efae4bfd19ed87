package timeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// DefaultExecLogSize is used when a non-positive capacity is requested.
const DefaultExecLogSize = 200

// ExecLog keeps the last N execution log lines for the UI.
// When full, the oldest line is overwritten.
type ExecLog struct {
	buf  []domain.LogEntry
	size int
	head int // write position
	tail int // oldest entry
	full bool
	mu   sync.RWMutex
	now  func() time.Time
}

// NewExecLog creates a log holding at most size entries.
func NewExecLog(size int) *ExecLog {
	if size <= 0 {
		size = DefaultExecLogSize
	}
	return &ExecLog{
		buf:  make([]domain.LogEntry, size),
		size: size,
		now:  time.Now,
	}
}

// Append adds one line, evicting the oldest when the ring is full.
func (l *ExecLog) Append(typ domain.LogType, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full {
		l.tail = (l.tail + 1) % l.size
	}
	l.buf[l.head] = domain.LogEntry{Type: typ, Message: message, Timestamp: l.now()}
	l.head = (l.head + 1) % l.size
	if l.head == l.tail {
		l.full = true
	}
}

// Info appends an info line.
func (l *ExecLog) Info(format string, args ...any) {
	l.Append(domain.LogInfo, fmt.Sprintf(format, args...))
}

// Action appends an action line.
func (l *ExecLog) Action(format string, args ...any) {
	l.Append(domain.LogAction, fmt.Sprintf(format, args...))
}

// Error appends an error line.
func (l *ExecLog) Error(format string, args ...any) {
	l.Append(domain.LogError, fmt.Sprintf(format, args...))
}

// Entries returns the retained lines, oldest first.
func (l *ExecLog) Entries() []domain.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.lenLocked()
	out := make([]domain.LogEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, l.buf[(l.tail+i)%l.size])
	}
	return out
}

// Len returns the number of retained lines.
func (l *ExecLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lenLocked()
}

func (l *ExecLog) lenLocked() int {
	switch {
	case l.full:
		return l.size
	case l.head >= l.tail:
		return l.head - l.tail
	default:
		return (l.size - l.tail) + l.head
	}
}

// Reset clears the log.
func (l *ExecLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.head = 0
	l.tail = 0
	l.full = false
}

// Capacity returns the maximum number of retained lines.
func (l *ExecLog) Capacity() int {
	return l.size
}
