// Package sandbox runs agent shell commands, either on the host inside the
// workspace directory or in a long-lived Docker container.
package sandbox

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/workspace"
)

const (
	// DefaultOutputLimit caps captured stdout and stderr, each.
	DefaultOutputLimit = 64 * 1024
	// DefaultTimeout bounds a single command.
	DefaultTimeout = 60 * time.Second
	// TimeoutExitCode is reported for commands killed by the timeout, as
	// coreutils timeout(1) does.
	TimeoutExitCode = 124

	truncatedMarker = "\n[output truncated]"
)

// limitedBuffer keeps the first limit bytes written and discards the rest
// while still reporting full writes, so the child never blocks on a pipe.
type limitedBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func newLimitedBuffer(limit int) *limitedBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + truncatedMarker
	}
	return string(b.buf)
}

// workdir maps a workspace-relative cwd onto base. Paths escaping the
// workspace are rejected.
func workdir(base, cwd string) (string, error) {
	if strings.TrimSpace(cwd) == "" {
		return base, nil
	}
	rel, err := workspace.Resolve(cwd)
	if err != nil {
		return "", fmt.Errorf("cwd %q: %w", cwd, err)
	}
	return path.Join(base, rel), nil
}

func timeoutMessage(d time.Duration) string {
	return fmt.Sprintf("command timed out after %s", d)
}
