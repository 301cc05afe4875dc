package eventstore

import (
	"context"

	"provision-saga/internal/domain/events"
)

// EventStore is the provisioning event journal: every event seen on the topic, per transaction.
type EventStore interface {
	// SaveEvent persists an event. Saving the same event ID again is a no-op.
	SaveEvent(ctx context.Context, event events.Event) error
	// LoadEvents returns the events of one transaction in arrival order.
	LoadEvents(ctx context.Context, aggregateID string) ([]events.Event, error)
}
