package eventbus

import (
	"context"

	"provision-saga/internal/domain/events"
)

type EventHandler func(ctx context.Context, event events.Event) error

// Publisher is the write side used by the coordinator.
type Publisher interface {
	Publish(ctx context.Context, topic string, event events.Event) error
}

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	Publisher
	// SubscribeWithGroupID subscribes to events from a topic with a specific consumer group ID
	SubscribeWithGroupID(ctx context.Context, topic, groupID string, handler EventHandler) error
	// Close closes the event bus
	Close() error
}
