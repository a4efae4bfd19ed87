package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
)

// LocalRunner runs commands with sh -c on the host, inside the workspace
// directory.
type LocalRunner struct {
	root        string
	shell       string
	timeout     time.Duration
	outputLimit int
}

var _ tools.ProcessRunner = (*LocalRunner)(nil)

// NewLocalRunner creates a runner rooted at the workspace directory.
func NewLocalRunner(root string, timeout time.Duration, outputLimit int) (*LocalRunner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LocalRunner{
		root:        abs,
		shell:       "sh",
		timeout:     timeout,
		outputLimit: outputLimit,
	}, nil
}

// Run executes command. A non-zero exit is reported in the result, not as
// an error; errors mean the command could not be started.
func (r *LocalRunner) Run(ctx context.Context, command, cwd string) (tools.ProcessResult, error) {
	dir, err := workdir(filepath.ToSlash(r.root), cwd)
	if err != nil {
		return tools.ProcessResult{}, err
	}
	dir = filepath.FromSlash(dir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return tools.ProcessResult{ExitCode: 1, Stderr: fmt.Sprintf("cwd %q is not a directory", cwd)}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stdout := newLimitedBuffer(r.outputLimit)
	stderr := newLimitedBuffer(r.outputLimit)

	cmd := exec.CommandContext(runCtx, r.shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err = cmd.Run()
	res := tools.ProcessResult{Stdout: stdout.String(), Stderr: stderr.String()}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = TimeoutExitCode
		res.Stderr = joinNonEmpty(res.Stderr, timeoutMessage(r.timeout))
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("start command: %w", err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	slog.Debug("Local command finished",
		"exit_code", res.ExitCode,
		"duration", time.Since(start),
		"cwd", dir,
	)
	return res, nil
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}
