package model

import (
	"encoding/json"
)

// EventType identifies the kind of runtime event carried in an envelope.
type EventType string

const (
	EventTypePartDelta         EventType = "part_delta"
	EventTypeSessionStatus     EventType = "session_status"
	EventTypeSessionError      EventType = "session_error"
	EventTypeMessageUpdated    EventType = "message_updated"
	EventTypeQuestionAsked     EventType = "question_asked"
	EventTypePermissionRequest EventType = "permission_request"
)

// PartKind identifies the kind of a streamed message part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartReasoning  PartKind = "reasoning"
	PartTool       PartKind = "tool"
	PartSubtask    PartKind = "subtask"
	PartRetry      PartKind = "retry"
	PartCompaction PartKind = "compaction"
)

// Envelope wraps one runtime event on the wire. Payload is decoded
// according to Type.
type Envelope struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Part is one fragment of an in-flight assistant message. ID may be empty
// for anonymous fragments; when present it is stable across events so that
// re-sent snapshots can be reconciled against earlier ones.
type Part struct {
	ID    string     `json:"id,omitempty"`
	Type  PartKind   `json:"type"`
	Text  string     `json:"text,omitempty"`
	Tool  string     `json:"tool,omitempty"`
	State *ToolState `json:"state,omitempty"`
}

// ToolState carries tool/sub-task progress attached to a part.
type ToolState struct {
	Status ToolRunStatus `json:"status"`
	Output string        `json:"output,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// PartDeltaEvent is one streamed update for a session. The payload carries
// either a full snapshot or an append-only delta; the event does not say
// which, the reconciler infers it.
type PartDeltaEvent struct {
	SessionID string `json:"session_id"`
	Part      *Part  `json:"part,omitempty"`
	Delta     string `json:"delta,omitempty"`
}

// SessionStatusKind identifies a session-scoped status notice.
type SessionStatusKind string

const (
	SessionStatusRetry SessionStatusKind = "retry"
	SessionStatusIdle  SessionStatusKind = "idle"
)

// SessionStatusEvent is a session-scoped status notice (retry attempt,
// runtime going idle).
type SessionStatusEvent struct {
	SessionID string            `json:"session_id"`
	Type      SessionStatusKind `json:"type"`
	Attempt   int               `json:"attempt,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// SessionErrorEvent reports a terminal runtime-side error for a session.
type SessionErrorEvent struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error"`
}

// MessageInfo identifies one message in the runtime's own history.
type MessageInfo struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Error string `json:"error,omitempty"`
}

// MessageUpdatedEvent announces that the runtime created or finalized one
// of its own messages. The renderer records the assistant message identity
// for undo targeting.
type MessageUpdatedEvent struct {
	SessionID string      `json:"session_id"`
	Info      MessageInfo `json:"info"`
}

// QuestionAskedEvent carries an interactive question set from the runtime.
type QuestionAskedEvent struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Questions []Question `json:"questions"`
}

// PermissionRequestEvent asks the user to allow or deny a tool invocation.
type PermissionRequestEvent struct {
	SessionID    string `json:"session_id"`
	PermissionID string `json:"permission_id"`
	Tool         string `json:"tool"`
	Description  string `json:"description"`
	Risk         string `json:"risk,omitempty"`
}
