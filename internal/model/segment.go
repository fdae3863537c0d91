// Package model defines data structures for the streaming renderer core.
package model

// SegmentKind identifies the kind of a timeline segment.
type SegmentKind string

const (
	SegmentText      SegmentKind = "text"
	SegmentReasoning SegmentKind = "reasoning"
	SegmentTool      SegmentKind = "tool"
	SegmentNote      SegmentKind = "note"
)

// NoteVariant styles a note segment.
type NoteVariant string

const (
	NoteInfo  NoteVariant = "info"
	NoteWarn  NoteVariant = "warn"
	NoteError NoteVariant = "error"
)

// ToolRunStatus is the lifecycle state of a tool or sub-task segment.
type ToolRunStatus string

const (
	ToolPending   ToolRunStatus = "pending"
	ToolRunning   ToolRunStatus = "running"
	ToolCompleted ToolRunStatus = "completed"
	ToolError     ToolRunStatus = "error"
)

// TurnStatus is the lifecycle state of one assistant turn.
type TurnStatus string

const (
	TurnRunning   TurnStatus = "running"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnAborted   TurnStatus = "aborted"
)

// Terminal reports whether the status ends a turn.
func (s TurnStatus) Terminal() bool {
	return s == TurnCompleted || s == TurnFailed || s == TurnAborted
}

// Segment is one renderable unit in a conversation timeline. Key is stable
// for the life of one exchange; Kind never changes once the key exists.
type Segment struct {
	Key        string        `json:"key"`
	Kind       SegmentKind   `json:"kind"`
	Content    string        `json:"content,omitempty"`
	ToolName   string        `json:"tool_name,omitempty"`
	ToolStatus ToolRunStatus `json:"tool_status,omitempty"`
	ToolOutput string        `json:"tool_output,omitempty"`
	Variant    NoteVariant   `json:"variant,omitempty"`

	// ClippedBytes is how much was dropped from the head of ToolOutput
	// to honor the retention limit.
	ClippedBytes int `json:"clipped_bytes,omitempty"`
}
