package ledger

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/pkg/logger"
	"github.com/cardbridge/stream-renderer/pkg/metrics"
)

// ErrNothingToUndo is returned when the ledger is empty.
var ErrNothingToUndo = errors.New("nothing to undo")

// RuntimeControl is the slice of the runtime control plane undo needs.
type RuntimeControl interface {
	ListMessages(ctx context.Context, sessionID string) ([]model.RuntimeMessage, error)
	Rollback(ctx context.Context, sessionID, targetMessageID string) error
}

// ArtifactDeleter is the slice of the render sink undo needs.
type ArtifactDeleter interface {
	DeleteArtifact(ctx context.Context, artifactID string) error
}

// Undoer rolls back the most recent exchange: one runtime-side history
// rollback plus best-effort deletion of every chat artifact the exchange
// produced. A question answer cascades through the prompt entries that
// belong to the same exchange.
type Undoer struct {
	runtime RuntimeControl
	sink    ArtifactDeleter
	log     *logger.Logger
}

// NewUndoer creates an undo engine.
func NewUndoer(runtime RuntimeControl, sink ArtifactDeleter, log *logger.Logger) *Undoer {
	return &Undoer{runtime: runtime, sink: sink, log: log}
}

// Undo pops and clears the most recent exchange from l. Exactly one
// runtime rollback is issued per call, no matter how many ledger entries
// the cascade clears.
func (u *Undoer) Undo(ctx context.Context, l *Ledger, sessionID string) error {
	popped := l.Pop()
	if popped == nil {
		metrics.UndoTotal.WithLabelValues("empty").Inc()
		return ErrNothingToUndo
	}

	u.rollback(ctx, sessionID, popped)
	u.deleteArtifacts(ctx, popped)

	if popped.Kind == model.InteractionQuestionAnswer {
		// The question exchange produced one prompt card per question;
		// clear them all, but the runtime rollback above already covers
		// the whole exchange.
		for {
			top := l.PeekLast()
			if top == nil || top.Kind != model.InteractionQuestionPrompt {
				break
			}
			u.deleteArtifacts(ctx, l.Pop())
		}
	}

	metrics.UndoTotal.WithLabelValues("ok").Inc()
	return nil
}

// rollback asks the runtime to rewind its history to just before the user
// input paired with entry. Failures degrade to a logged warning; partial
// cleanup beats none.
func (u *Undoer) rollback(ctx context.Context, sessionID string, entry *model.Interaction) {
	messages, err := u.runtime.ListMessages(ctx, sessionID)
	if err != nil {
		u.log.Warn("undo: listing runtime messages failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}
	target := resolveRollbackTarget(messages, entry.AssistantMessageID)
	if target == "" {
		u.log.Warn("undo: no rollback target resolvable",
			zap.String("session_id", sessionID),
			zap.String("assistant_message_id", entry.AssistantMessageID),
		)
		return
	}
	if err := u.runtime.Rollback(ctx, sessionID, target); err != nil {
		u.log.Warn("undo: runtime rollback failed",
			zap.String("session_id", sessionID),
			zap.String("target_message_id", target),
			zap.Error(err),
		)
	}
}

func (u *Undoer) deleteArtifacts(ctx context.Context, entry *model.Interaction) {
	ids := append([]string(nil), entry.BotArtifactIDs...)
	if entry.UserArtifactID != "" {
		ids = append(ids, entry.UserArtifactID)
	}
	for _, id := range ids {
		err := u.sink.DeleteArtifact(ctx, id)
		metrics.RecordArtifactOp("delete", err)
		if err != nil {
			// Already deleted, no permission: swallowed either way.
			u.log.Debug("undo: artifact delete failed",
				zap.String("artifact_id", id),
				zap.Error(err),
			)
		}
	}
}

// resolveRollbackTarget locates the recorded assistant message in the
// runtime's own list and returns the user turn immediately preceding it.
// When the identity is not found (locally synthesized question answers
// have no runtime message) it falls back to the second-to-last message.
func resolveRollbackTarget(messages []model.RuntimeMessage, assistantMessageID string) string {
	if assistantMessageID != "" {
		for i, msg := range messages {
			if msg.ID != assistantMessageID {
				continue
			}
			for j := i - 1; j >= 0; j-- {
				if messages[j].Role == "user" {
					return messages[j].ID
				}
			}
			break
		}
	}
	if len(messages) >= 2 {
		return messages[len(messages)-2].ID
	}
	return ""
}
