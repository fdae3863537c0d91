package renderer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/internal/renderbuf"
)

// HandleEvent consumes one decoded runtime event. Events for unknown
// sessions implicitly create a conversation keyed by the session,
// covering turns that the chat binding did not pre-register.
func (c *Coordinator) HandleEvent(ctx context.Context, env *model.Envelope) {
	switch env.Type {
	case model.EventTypePartDelta:
		var ev model.PartDeltaEvent
		if !c.decode(env, &ev) {
			return
		}
		c.handlePartDelta(&ev)
	case model.EventTypeSessionStatus:
		var ev model.SessionStatusEvent
		if !c.decode(env, &ev) {
			return
		}
		c.handleSessionStatus(&ev)
	case model.EventTypeSessionError:
		var ev model.SessionErrorEvent
		if !c.decode(env, &ev) {
			return
		}
		c.handleSessionError(&ev)
	case model.EventTypeMessageUpdated:
		var ev model.MessageUpdatedEvent
		if !c.decode(env, &ev) {
			return
		}
		c.handleMessageUpdated(&ev)
	case model.EventTypeQuestionAsked:
		var ev model.QuestionAskedEvent
		if !c.decode(env, &ev) {
			return
		}
		c.handleQuestionAsked(ctx, &ev)
	case model.EventTypePermissionRequest:
		var ev model.PermissionRequestEvent
		if !c.decode(env, &ev) {
			return
		}
		c.handlePermissionRequest(&ev)
	default:
		c.logger.Debug("ignoring unknown event type", zap.String("type", string(env.Type)))
	}
}

func (c *Coordinator) decode(env *model.Envelope, out any) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		c.logger.Warn("undecodable event payload",
			zap.String("type", string(env.Type)),
			zap.String("session_id", env.SessionID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// forSession resolves the conversation for a session, binding one keyed
// by the session ID when the chat binding has not registered it.
func (c *Coordinator) forSession(sessionID string) *Conversation {
	if conv := c.store.getBySession(sessionID); conv != nil {
		return conv
	}
	return c.Bind(sessionID, sessionID, sessionID, "")
}

func (c *Coordinator) handlePartDelta(ev *model.PartDeltaEvent) {
	conv := c.forSession(ev.SessionID)
	buf := conv.currentBuffer()
	if buf == nil {
		return
	}

	part := ev.Part
	if part == nil {
		// Bare delta with no part: anonymous generated text.
		part = &model.Part{Type: model.PartText}
	}
	payload := ev.Delta
	if payload == "" {
		payload = part.Text
	}

	switch part.Type {
	case model.PartText:
		key := part.ID
		if key == "" {
			key = "text"
		}
		conv.setTextKey(key)
		appended := c.reconciler.Apply(ev.SessionID, part.ID, payload)
		conv.timeline.AppendText(key, model.SegmentText, appended)
		buf.AppendText(appended)
	case model.PartReasoning:
		key := part.ID
		if key == "" {
			key = "reasoning"
		}
		appended := c.reconciler.Apply(ev.SessionID, part.ID, payload)
		conv.timeline.AppendText(key, model.SegmentReasoning, appended)
		buf.AppendReasoning(appended)
	case model.PartTool, model.PartSubtask:
		key := part.ID
		name := part.Tool
		if name == "" {
			name = part.Text
		}
		if key == "" {
			key = "tool:" + name
		}
		status := model.ToolRunning
		output := ""
		if part.State != nil {
			if part.State.Status != "" {
				status = part.State.Status
			}
			output = part.State.Output
			if part.State.Error != "" {
				status = model.ToolError
				output = part.State.Error
			}
		}
		conv.timeline.UpsertTool(key, name, status, output)
		buf.SetTool(key, renderbuf.ToolSummary{Name: name, Status: status, Output: output})
	case model.PartRetry:
		key := part.ID
		if key == "" {
			key = "retry"
		}
		text := payload
		if text == "" {
			text = "retrying"
		}
		conv.timeline.UpsertNote(key, text, model.NoteWarn)
		buf.Touch()
	case model.PartCompaction:
		conv.timeline.UpsertNote("compaction", "context compacted", model.NoteInfo)
		buf.Touch()
	default:
		c.logger.Debug("ignoring unknown part kind",
			zap.String("kind", string(part.Type)),
			zap.String("session_id", ev.SessionID),
		)
	}
}

func (c *Coordinator) handleSessionStatus(ev *model.SessionStatusEvent) {
	conv := c.forSession(ev.SessionID)
	buf := conv.currentBuffer()
	if buf == nil {
		return
	}
	switch ev.Type {
	case model.SessionStatusRetry:
		text := ev.Message
		if text == "" {
			text = fmt.Sprintf("retrying (attempt %d)", ev.Attempt)
		}
		conv.timeline.UpsertNote(fmt.Sprintf("retry-%d", ev.Attempt), text, model.NoteWarn)
		buf.Touch()
	case model.SessionStatusIdle:
		buf.SetStatus(model.TurnCompleted)
	}
}

func (c *Coordinator) handleSessionError(ev *model.SessionErrorEvent) {
	conv := c.forSession(ev.SessionID)
	buf := conv.currentBuffer()
	if buf == nil {
		return
	}

	identity := ev.MessageID + "|" + ev.Error
	if conv.markErrorSeen(identity) {
		return
	}

	text, status := classifyError(ev.Error)
	conv.timeline.UpsertNote("error:"+identity, text, model.NoteError)
	buf.SetStatus(status)
}

func (c *Coordinator) handleMessageUpdated(ev *model.MessageUpdatedEvent) {
	conv := c.forSession(ev.SessionID)
	if ev.Info.Role == "assistant" && ev.Info.ID != "" {
		conv.setAssistantMessageID(ev.Info.ID)
	}
}

func (c *Coordinator) handleQuestionAsked(ctx context.Context, ev *model.QuestionAskedEvent) {
	if len(ev.Questions) == 0 {
		return
	}
	conv := c.forSession(ev.SessionID)
	c.questions.Ask(model.QuestionSet{
		RequestID: ev.ID,
		SessionID: ev.SessionID,
		Questions: ev.Questions,
	})
	c.promptCurrentQuestion(ctx, conv)
	if buf := conv.currentBuffer(); buf != nil {
		buf.Touch()
	}
}

func (c *Coordinator) handlePermissionRequest(ev *model.PermissionRequestEvent) {
	conv := c.forSession(ev.SessionID)
	c.perms.Enqueue(conv.Key, &model.PendingPermission{
		SessionID:    ev.SessionID,
		PermissionID: ev.PermissionID,
		Tool:         ev.Tool,
		Description:  ev.Description,
		Risk:         ev.Risk,
	})
	if buf := conv.currentBuffer(); buf != nil {
		buf.Touch()
	}
}
