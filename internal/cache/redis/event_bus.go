package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/openharvest/harvestd/internal/domain"
)

// operationEventsChannel is the Pub/Sub channel operation state transitions
// travel on.
const operationEventsChannel = "events:operations"

// EventBus fans operation state transitions out across service instances via
// Redis Pub/Sub. A dashboard WebSocket connected to any instance sees events
// produced by every instance.
type EventBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client, logger *slog.Logger) *EventBus {
	return &EventBus{
		rdb:    c.rdb,
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Publish broadcasts one operation event. Delivery is fire-and-forget:
// Pub/Sub has no backlog, and a missed transition is recoverable from the
// operations audit table.
func (b *EventBus) Publish(ctx context.Context, event domain.OperationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal operation event: %w", err)
	}
	if err := b.rdb.Publish(ctx, operationEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish operation event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of operation events published by any instance.
// The subscription closes when the context is cancelled; the returned channel
// is closed at that point as well. Undecodable payloads are logged and
// skipped.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.OperationEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, operationEventsChannel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe operation events: %w", err)
	}

	out := make(chan domain.OperationEvent, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.OperationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping undecodable operation event", slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
