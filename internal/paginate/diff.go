package paginate

import (
	"context"

	"go.uber.org/zap"

	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/internal/sink"
	"github.com/cardbridge/stream-renderer/pkg/logger"
	"github.com/cardbridge/stream-renderer/pkg/metrics"
)

// Differ reconciles freshly rendered documents against the artifact IDs
// from the previous flush, bounding churn to the minimum number of
// create, update and delete calls.
type Differ struct {
	sink sink.Sink
	log  *logger.Logger
}

// NewDiffer creates a differ writing through the given sink.
func NewDiffer(s sink.Sink, log *logger.Logger) *Differ {
	return &Differ{sink: s, log: log}
}

// Apply pushes docs to the chat surface and returns the artifact IDs now
// representing the turn, position for position. Overlapping positions are
// updated in place; update failures fall back to create-and-delete-stale;
// surplus trailing artifacts are deleted.
func (d *Differ) Apply(ctx context.Context, chatID string, oldIDs []string, docs []*model.Document) []string {
	newIDs := make([]string, 0, len(docs))

	for i, doc := range docs {
		if i < len(oldIDs) {
			err := d.sink.UpdateArtifact(ctx, oldIDs[i], doc)
			metrics.RecordArtifactOp("update", err)
			if err == nil {
				newIDs = append(newIDs, oldIDs[i])
				continue
			}
			d.log.Warn("artifact update failed, replacing",
				zap.String("artifact_id", oldIDs[i]),
				zap.Error(err),
			)
			id, sendErr := d.sink.SendArtifact(ctx, chatID, doc)
			metrics.RecordArtifactOp("send", sendErr)
			if sendErr != nil {
				// Keep the stale artifact rather than losing the slot.
				d.log.Warn("artifact replacement failed, keeping stale content",
					zap.String("artifact_id", oldIDs[i]),
					zap.Error(sendErr),
				)
				newIDs = append(newIDs, oldIDs[i])
				continue
			}
			d.deleteAsync(oldIDs[i])
			newIDs = append(newIDs, id)
			continue
		}

		id, err := d.sink.SendArtifact(ctx, chatID, doc)
		metrics.RecordArtifactOp("send", err)
		if err != nil {
			d.log.Warn("artifact create failed", zap.Error(err))
			continue
		}
		newIDs = append(newIDs, id)
	}

	for _, stale := range oldIDs[min(len(docs), len(oldIDs)):] {
		err := d.sink.DeleteArtifact(ctx, stale)
		metrics.RecordArtifactOp("delete", err)
		if err != nil {
			d.log.Warn("artifact delete failed",
				zap.String("artifact_id", stale),
				zap.Error(err),
			)
		}
	}

	return newIDs
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (d *Differ) deleteAsync(artifactID string) {
	go func() {
		err := d.sink.DeleteArtifact(context.Background(), artifactID)
		metrics.RecordArtifactOp("delete", err)
		if err != nil {
			d.log.Warn("stale artifact delete failed",
				zap.String("artifact_id", artifactID),
				zap.Error(err),
			)
		}
	}()
}
