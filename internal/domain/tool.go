package domain

// ToolCall is a structured tool invocation extracted from model output.
type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolResult is the uniform outcome of every tool handler.
type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a successful result.
func OK(message string, data any) ToolResult {
	return ToolResult{Success: true, Message: message, Data: data}
}

// Fail builds a failed result.
func Fail(message string) ToolResult {
	return ToolResult{Success: false, Message: message}
}

// MemoryEntry records one tool attempt inside a turn's working memory.
type MemoryEntry struct {
	StepIndex int            `json:"step_index"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Data      any            `json:"data,omitempty"`
}
