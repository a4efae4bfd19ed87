package tools

import (
	"context"
	"fmt"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

var noWindows = domain.Fail("window control is not available")

// WindowTools returns the shell window tools.
func WindowTools() []Tool {
	return []Tool{
		{
			Name:        "open_app",
			Description: "Open an application window in the shell.",
			Params: map[string]Param{
				"app":   {Type: "string", Required: true, Description: "application id, e.g. browser, terminal, files, notes"},
				"title": {Type: "string"},
			},
			Handler: openApp,
		},
		{
			Name:        "close_window",
			Description: "Close a window by id.",
			Params: map[string]Param{
				"window_id": {Type: "string", Required: true},
			},
			Handler: closeWindow,
		},
		{
			Name:        "focus_window",
			Description: "Bring a window to the front.",
			Params: map[string]Param{
				"window_id": {Type: "string", Required: true},
			},
			Handler: focusWindow,
		},
		{
			Name:        "list_windows",
			Description: "List the open windows.",
			Handler:     listWindows,
		},
	}
}

func openApp(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Windows == nil {
		return noWindows, nil
	}
	app, err := StringArg(args, "app")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	title, err := OptString(args, "title", "")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	win, err := caps.Windows.Open(ctx, app, title)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	return domain.OK(fmt.Sprintf("Opened %s (window %s)", win.App, win.ID), win), nil
}

func closeWindow(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Windows == nil {
		return noWindows, nil
	}
	id, err := StringArg(args, "window_id")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if err := caps.Windows.Close(ctx, id); err != nil {
		return domain.Fail(err.Error()), nil
	}
	return domain.OK("Closed window "+id, nil), nil
}

func focusWindow(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Windows == nil {
		return noWindows, nil
	}
	id, err := StringArg(args, "window_id")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if err := caps.Windows.Focus(ctx, id); err != nil {
		return domain.Fail(err.Error()), nil
	}
	return domain.OK("Focused window "+id, nil), nil
}

func listWindows(ctx context.Context, _ map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Windows == nil {
		return noWindows, nil
	}
	wins, err := caps.Windows.List(ctx)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("list windows: %w", err)
	}
	return domain.OK(fmt.Sprintf("%d open windows", len(wins)), wins), nil
}
