package domain

import "time"

// StepKind classifies a timeline entry.
type StepKind string

const (
	StepThinking    StepKind = "thinking"
	StepStreaming   StepKind = "streaming"
	StepToolCall    StepKind = "tool-call"
	StepToolSuccess StepKind = "tool-success"
	StepToolError   StepKind = "tool-error"
	StepInfo        StepKind = "info"
	StepError       StepKind = "error"
)

// Active reports whether entries of this kind are still in progress.
func (k StepKind) Active() bool {
	return k == StepThinking || k == StepStreaming
}

// Terminal reports whether the kind closes a tool-call entry.
func (k StepKind) Terminal() bool {
	return k == StepToolSuccess || k == StepToolError
}

// StepEntry is one entry of a turn's step timeline.
type StepEntry struct {
	ID     int       `json:"id"`
	Kind   StepKind  `json:"kind"`
	Text   string    `json:"text"`
	Body   string    `json:"body,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Tool   string    `json:"tool,omitempty"`
	At     time.Time `json:"at"`
}

// StepPatch carries the fields to merge into an existing entry.
// Nil fields are left untouched.
type StepPatch struct {
	Kind   *StepKind
	Text   *string
	Body   *string
	Detail *string
}

// LogType classifies execution log lines.
type LogType string

const (
	LogInfo   LogType = "info"
	LogAction LogType = "action"
	LogError  LogType = "error"
)

// LogEntry is one line of the best-effort execution log.
type LogEntry struct {
	Type      LogType   `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
