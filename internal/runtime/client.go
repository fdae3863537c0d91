// Package runtime provides the control plane toward the assistant runtime
// collaborator.
package runtime

import (
	"context"

	"github.com/cardbridge/stream-renderer/internal/model"
)

// Client is the interface for assistant-runtime control operations. All
// calls are session scoped and may fail transiently; the renderer treats
// failures as degradations, never as fatal.
type Client interface {
	// Abort cancels the session's in-flight turn.
	Abort(ctx context.Context, sessionID string) error

	// ListMessages returns the runtime's own message history.
	ListMessages(ctx context.Context, sessionID string) ([]model.RuntimeMessage, error)

	// Rollback rewinds the runtime's history to just before the target
	// message.
	Rollback(ctx context.Context, sessionID, targetMessageID string) error

	// RespondPermission answers an outstanding tool-permission request.
	RespondPermission(ctx context.Context, sessionID, permissionID string, allow, remember bool) error

	// ReplyQuestion submits all draft answers for a question request.
	ReplyQuestion(ctx context.Context, requestID string, answers [][]string) error

	// RejectQuestion abandons a question request without answering.
	RejectQuestion(ctx context.Context, requestID string) error
}
