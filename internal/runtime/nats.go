package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	natsclient "github.com/cardbridge/stream-renderer/internal/nats"
	"github.com/cardbridge/stream-renderer/internal/model"
)

// ControlSubjectPrefix is the prefix for runtime control-plane subjects.
const ControlSubjectPrefix = "agentctl"

// NATSClient reaches the runtime over core NATS request-reply.
type NATSClient struct {
	client *natsclient.Client
}

// NewNATSClient creates a control-plane client over an existing
// connection.
func NewNATSClient(client *natsclient.Client) *NATSClient {
	return &NATSClient{client: client}
}

type controlReply struct {
	OK       bool                   `json:"ok"`
	Error    string                 `json:"error,omitempty"`
	Messages []model.RuntimeMessage `json:"messages,omitempty"`
}

// ControlSubject returns the subject for one control verb.
func ControlSubject(sessionID, verb string) string {
	return fmt.Sprintf("%s.%s.%s", ControlSubjectPrefix, sessionID, verb)
}

// Abort cancels the session's in-flight turn.
func (c *NATSClient) Abort(ctx context.Context, sessionID string) error {
	_, err := c.request(ctx, ControlSubject(sessionID, "abort"), map[string]string{
		"session_id": sessionID,
	})
	return err
}

// ListMessages returns the runtime's own message history.
func (c *NATSClient) ListMessages(ctx context.Context, sessionID string) ([]model.RuntimeMessage, error) {
	reply, err := c.request(ctx, ControlSubject(sessionID, "messages"), map[string]string{
		"session_id": sessionID,
	})
	if err != nil {
		return nil, err
	}
	return reply.Messages, nil
}

// Rollback rewinds the runtime's history to just before the target
// message.
func (c *NATSClient) Rollback(ctx context.Context, sessionID, targetMessageID string) error {
	_, err := c.request(ctx, ControlSubject(sessionID, "rollback"), map[string]string{
		"session_id":        sessionID,
		"target_message_id": targetMessageID,
	})
	return err
}

// RespondPermission answers an outstanding tool-permission request.
func (c *NATSClient) RespondPermission(ctx context.Context, sessionID, permissionID string, allow, remember bool) error {
	_, err := c.request(ctx, ControlSubject(sessionID, "permission"), map[string]any{
		"session_id":    sessionID,
		"permission_id": permissionID,
		"allow":         allow,
		"remember":      remember,
	})
	return err
}

// ReplyQuestion submits all draft answers for a question request.
func (c *NATSClient) ReplyQuestion(ctx context.Context, requestID string, answers [][]string) error {
	_, err := c.request(ctx, ControlSubject(requestID, "question"), map[string]any{
		"request_id": requestID,
		"answers":    answers,
	})
	return err
}

// RejectQuestion abandons a question request without answering.
func (c *NATSClient) RejectQuestion(ctx context.Context, requestID string) error {
	_, err := c.request(ctx, ControlSubject(requestID, "question_reject"), map[string]string{
		"request_id": requestID,
	})
	return err
}

func (c *NATSClient) request(ctx context.Context, subject string, body any) (*controlReply, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal control request: %w", err)
	}

	msg, err := c.client.Conn().RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("control request %s: %w", subject, err)
	}

	var reply controlReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode control reply: %w", err)
	}
	if !reply.OK {
		if reply.Error == "" {
			return nil, errors.New("runtime rejected control request")
		}
		return nil, errors.New(reply.Error)
	}
	return &reply, nil
}
