// Package events provisions the runtime event stream and pumps decoded
// events into the renderer.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/cardbridge/stream-renderer/internal/model"
	natsclient "github.com/cardbridge/stream-renderer/internal/nats"
	"github.com/cardbridge/stream-renderer/pkg/logger"
	"github.com/cardbridge/stream-renderer/pkg/metrics"
)

const (
	// StreamName is the name of the runtime events stream.
	StreamName = "AGENT_EVENTS"

	// SubjectPrefix is the prefix for all runtime event subjects.
	SubjectPrefix = "agentevt"

	// ConsumerName is the renderer's durable consumer.
	ConsumerName = "renderer"
)

// Handler consumes decoded runtime events. Events for the same session
// are delivered in arrival order.
type Handler interface {
	HandleEvent(ctx context.Context, env *model.Envelope)
}

// Pump owns the JetStream consumer feeding the renderer.
type Pump struct {
	client  *natsclient.Client
	handler Handler
	logger  *logger.Logger
}

// NewPump creates a pump delivering to handler.
func NewPump(client *natsclient.Client, handler Handler, log *logger.Logger) *Pump {
	return &Pump{client: client, handler: handler, logger: log}
}

// EventSubject returns the subject for one session event.
func EventSubject(sessionID string, t model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, sessionID, t)
}

// EnsureStream ensures the runtime events stream exists.
func (p *Pump) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024, // 1GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Assistant runtime update events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Run consumes events until ctx is canceled. Delivery stays in stream
// order; the per-conversation debounce downstream absorbs bursts.
func (p *Pump) Run(ctx context.Context) error {
	js := p.client.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: fmt.Sprintf("%s.>", SubjectPrefix),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var env model.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			p.logger.Warn("dropping undecodable event",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			_ = msg.Ack()
			return
		}
		metrics.EventsTotal.WithLabelValues(string(env.Type)).Inc()
		p.handler.HandleEvent(ctx, &env)
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	return ctx.Err()
}
