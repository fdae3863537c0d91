// Package sink defines the render-sink contract toward the chat platform
// and ships an HTTP bridge implementation.
package sink

import (
	"context"

	"github.com/cardbridge/stream-renderer/internal/model"
)

// Sink delivers rendered card documents to the chat surface. Artifact IDs
// are opaque and assigned by the platform.
type Sink interface {
	// SendArtifact creates a new artifact and returns its ID.
	SendArtifact(ctx context.Context, chatID string, doc *model.Document) (string, error)

	// UpdateArtifact replaces an existing artifact's content in place.
	UpdateArtifact(ctx context.Context, artifactID string, doc *model.Document) error

	// DeleteArtifact removes an artifact. Best-effort: callers ignore
	// errors.
	DeleteArtifact(ctx context.Context, artifactID string) error
}
