package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig, logger *zap.Logger) (domain.EventBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize, logger), nil

	case "nats":
		return NewNATSBus(cfg, logger)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// QueueSubscriber is implemented by buses that can load-balance a topic
// across a named group of subscribers.
type QueueSubscriber interface {
	QueueSubscribe(ctx context.Context, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error)
}

// newMessage builds the envelope for a published payload. The active trace
// id, if any, travels in the metadata.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata["traceId"] = sc.TraceID().String()
	}
	return msg
}

// Reply publishes payload as the response to a request message. It is a
// no-op for messages that were published rather than requested.
func Reply(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	replyTo := msg.Metadata["replyTo"]
	if replyTo == "" {
		return nil
	}
	return b.Publish(ctx, replyTo, payload)
}
