package tools

import (
	"context"
	"fmt"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

var noMemory = domain.Fail("memory store is not available")

// MemoryTools returns the key/value memory tools.
func MemoryTools() []Tool {
	return []Tool{
		{
			Name:        "remember",
			Description: "Store a value under a key in long-term memory.",
			Params: map[string]Param{
				"key":   {Type: "string", Required: true},
				"value": {Type: "string", Required: true},
			},
			Handler: remember,
		},
		{
			Name:        "recall",
			Description: "Read a value from long-term memory. Without a key, returns everything.",
			Params: map[string]Param{
				"key": {Type: "string"},
			},
			Handler: recall,
		},
		{
			Name:        "forget",
			Description: "Remove a key from long-term memory.",
			Params: map[string]Param{
				"key": {Type: "string", Required: true},
			},
			Handler: forget,
		},
	}
}

func remember(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Memory == nil {
		return noMemory, nil
	}
	key, err := StringArg(args, "key")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	value, err := RawString(args, "value")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if err := caps.Memory.Set(ctx, key, value); err != nil {
		return domain.ToolResult{}, fmt.Errorf("remember %s: %w", key, err)
	}
	return domain.OK("Remembered "+key, nil), nil
}

func recall(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Memory == nil {
		return noMemory, nil
	}
	key, err := OptString(args, "key", "")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if key == "" {
		all, err := caps.Memory.All(ctx)
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("recall all: %w", err)
		}
		return domain.OK(fmt.Sprintf("%d keys in memory", len(all)), all), nil
	}
	value, ok, err := caps.Memory.Get(ctx, key)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("recall %s: %w", key, err)
	}
	if !ok {
		return domain.Fail("Nothing remembered under " + key), nil
	}
	return domain.OK(fmt.Sprintf("%s = %s", key, truncate(value, 200)), map[string]string{"key": key, "value": value}), nil
}

func forget(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	if caps == nil || caps.Memory == nil {
		return noMemory, nil
	}
	key, err := StringArg(args, "key")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if err := caps.Memory.Delete(ctx, key); err != nil {
		return domain.ToolResult{}, fmt.Errorf("forget %s: %w", key, err)
	}
	return domain.OK("Forgot "+key, nil), nil
}
