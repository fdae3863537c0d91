package renderer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/internal/paginate"
	"github.com/cardbridge/stream-renderer/internal/renderbuf"
	"github.com/cardbridge/stream-renderer/pkg/metrics"
)

// flushTimeout bounds one render pass toward the sink.
const flushTimeout = 30 * time.Second

// flush performs one render pass for a conversation. The buffer
// guarantees a single flight per turn; buf identity guards against a
// pass scheduled by a buffer that a new turn has since replaced.
func (c *Coordinator) flush(conv *Conversation, buf *renderbuf.Buffer) {
	if conv.currentBuffer() != buf {
		metrics.FlushesTotal.WithLabelValues("coalesced").Inc()
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	status := buf.Status()
	if status.Terminal() {
		c.applyFinalOverride(conv, buf)
	}

	pending := buf.GetAndClearPending()
	snapshot := conv.timeline.Snapshot()
	perm := c.perms.Peek(conv.Key)
	question := c.pendingQuestionSummary(conv.SessionID)

	if status == model.TurnRunning && !visible(pending, snapshot, buf, perm, question) {
		// Nothing to show while the assistant is still thinking; an
		// empty artifact would only be noise.
		metrics.FlushesTotal.WithLabelValues("suppressed").Inc()
		return
	}

	docs := c.paginator.Render(snapshot, status, perm, question)
	oldIDs := buf.ArtifactIDs()
	newIDs := c.differ.Apply(ctx, conv.ChatID, oldIDs, docs)
	buf.SetArtifactIDs(newIDs)

	if status.Terminal() {
		c.commitInteraction(conv, buf, newIDs, snapshot)
	}

	metrics.FlushesTotal.WithLabelValues("rendered").Inc()
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	c.logger.Debug("flushed",
		zap.String("conversation_key", conv.Key),
		zap.String("status", string(status)),
		zap.Int("documents", len(docs)),
		zap.Int("pending_text_bytes", len(pending.Text)+len(pending.Reasoning)),
	)
}

// applyFinalOverride replaces accumulated text with the runtime's own
// terminal message, which may differ from the deltas due to
// post-processing.
func (c *Coordinator) applyFinalOverride(conv *Conversation, buf *renderbuf.Buffer) {
	text, reasoning, ok := buf.Final()
	if !ok {
		return
	}
	if text != "" {
		key := conv.getTextKey()
		if key == "" {
			key = "text"
			conv.setTextKey(key)
		}
		conv.timeline.UpsertText(key, model.SegmentText, text)
	}
	if reasoning != "" {
		conv.timeline.UpsertText("reasoning", model.SegmentReasoning, reasoning)
	}
}

// commitInteraction records the finished turn in the ledger, attaching
// artifact IDs onto the in-flight entry when one already owns them.
func (c *Coordinator) commitInteraction(conv *Conversation, buf *renderbuf.Buffer, artifactIDs []string, snapshot []model.Segment) {
	if conv.markFinalized() {
		// Re-rendered after the terminal pass; just refresh IDs.
		conv.ledger.Update(
			func(e *model.Interaction) bool { return e.OwnsArtifact(artifactIDs) },
			func(e *model.Interaction) { e.BotArtifactIDs = artifactIDs },
		)
		return
	}
	if len(artifactIDs) == 0 {
		return
	}

	updated := conv.ledger.Update(
		func(e *model.Interaction) bool { return e.OwnsArtifact(artifactIDs) },
		func(e *model.Interaction) { e.BotArtifactIDs = artifactIDs },
	)
	if updated {
		return
	}

	var rendered strings.Builder
	for _, seg := range snapshot {
		rendered.WriteString(seg.Content)
	}
	conv.ledger.Add(&model.Interaction{
		UserArtifactID:     buf.UserArtifactID(),
		AssistantMessageID: conv.getAssistantMessageID(),
		BotArtifactIDs:     artifactIDs,
		Kind:               model.InteractionNormal,
		Snapshot:           rendered.String(),
		CreatedAt:          time.Now(),
	})
	c.reconciler.Purge(conv.SessionID)
}

// pendingQuestionSummary builds the banner line for an outstanding
// question, if any.
func (c *Coordinator) pendingQuestionSummary(sessionID string) *paginate.PendingQuestion {
	q, index, total, err := c.questions.Current(sessionID)
	if err != nil {
		return nil
	}
	return &paginate.PendingQuestion{Prompt: q.Prompt, Index: index, Total: total}
}

func visible(pending renderbuf.Pending, snapshot []model.Segment, buf *renderbuf.Buffer, perm *model.PendingPermission, question *paginate.PendingQuestion) bool {
	if strings.TrimSpace(pending.Text) != "" || strings.TrimSpace(pending.Reasoning) != "" {
		return true
	}
	if len(snapshot) > 0 {
		return true
	}
	if len(buf.Tools()) > 0 {
		return true
	}
	return perm != nil || question != nil
}
