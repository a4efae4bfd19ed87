package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// maxWait caps the local wait tool.
const maxWait = 30 * time.Second

// SystemTools returns the process and utility tools.
func SystemTools() []Tool {
	return []Tool{
		{
			Name:        "run_command",
			Description: "Run a shell command in the sandbox and return its output.",
			Params: map[string]Param{
				"command": {Type: "string", Required: true},
				"cwd":     {Type: "string", Description: "working directory inside the workspace"},
			},
			Handler: runCommand,
		},
		{
			Name:        "wait",
			Description: "Pause for a number of milliseconds (max 30000).",
			Params: map[string]Param{
				"ms": {Type: "number", Required: true},
			},
			Handler: wait,
		},
	}
}

func runCommand(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Processes == nil {
		return domain.Fail("process execution is not available"), nil
	}
	command, err := StringArg(args, "command")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	cwd, err := OptString(args, "cwd", "")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}

	res, err := caps.Processes.Run(ctx, command, cwd)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("run %q: %w", truncate(command, 80), err)
	}
	if res.ExitCode != 0 {
		msg := fmt.Sprintf("Command exited with code %d", res.ExitCode)
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			msg += ": " + truncate(stderr, 300)
		}
		return domain.ToolResult{Success: false, Message: msg, Data: res}, nil
	}
	return domain.OK(fmt.Sprintf("Command finished (%d bytes of output)", len(res.Stdout)), res), nil
}

func wait(ctx context.Context, args map[string]any, _ *Capabilities) (domain.ToolResult, error) {
	ms, err := IntArg(args, "ms")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if ms < 0 {
		return domain.Fail(`argument "ms" must not be negative`), nil
	}
	d := time.Duration(min(ms, int(maxWait/time.Millisecond))) * time.Millisecond

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return domain.OK(fmt.Sprintf("Waited %s", d), nil), nil
	case <-ctx.Done():
		return domain.Fail("wait interrupted: " + ctx.Err().Error()), nil
	}
}
