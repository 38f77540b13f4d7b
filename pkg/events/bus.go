package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// TopicActivity carries user activity events persisted to activity_logs.
const TopicActivity = "activity"

// Publisher is the narrow contract services depend on.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// HandlerFunc consumes one decoded message payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Bus is an in-process pub/sub backed by watermill's go channel transport.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

// NewBus constructs the bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewZapAdapter(logger))
	return &Bus{pubsub: ps, logger: logger}
}

// Publish JSON-encodes payload and sends it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(context.WithoutCancel(ctx))
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a goroutine feeding messages on topic to handler until ctx ends
// or the bus is closed. Failed messages are logged and acknowledged so a poison
// message cannot block the topic.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	go func() {
		for msg := range messages {
			if err := handler(msg.Context(), msg.Payload); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("topic", topic),
					zap.String("message_id", msg.UUID),
					zap.Error(err),
				)
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close stops delivery to every subscriber.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
