package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/metrics"
)

// New creates an event bus from configuration: "channel" for a single
// process, "nats" for a shared broker.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// envelope wraps a payload for delivery on topic.
func envelope(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// deliver runs handler on msg. Handler errors are logged and counted; they
// never cancel the subscription.
func deliver(ctx context.Context, handler domain.MessageHandler, msg *domain.Message) {
	if err := handler(ctx, msg); err != nil {
		metrics.BusMessage(msg.Topic, metrics.BusHandlerError)
		slog.Error("handler error",
			"topic", msg.Topic,
			"message_id", msg.ID,
			"error", err,
		)
		return
	}
	metrics.BusMessage(msg.Topic, metrics.BusDelivered)
}
