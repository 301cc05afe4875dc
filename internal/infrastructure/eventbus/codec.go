package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"provision-saga/internal/domain/events"
)

type envelope struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"`
	AggregateID   string               `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	Version       int                  `json:"version"`
	Data          json.RawMessage      `json:"data"`
	Metadata      events.EventMetadata `json:"metadata"`
	Timestamp     time.Time            `json:"timestamp"`
}

// marshalEvent serializes an event to JSON
func marshalEvent(event events.Event) ([]byte, error) {
	eventData, err := json.Marshal(event.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return json.Marshal(envelope{
		ID:            event.ID(),
		Type:          event.Type(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Version:       event.Version(),
		Data:          eventData,
		Metadata:      event.Metadata(),
		Timestamp:     event.Timestamp(),
	})
}

// unmarshalEvent decodes a message value, restoring the typed payload for known event types.
func unmarshalEvent(value []byte) (events.Event, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	data, err := events.DecodeData(env.Type, env.Data)
	if err != nil {
		return nil, err
	}

	return events.NewBaseEventWithTimestamp(
		env.ID,
		env.Type,
		env.AggregateID,
		env.AggregateType,
		env.Version,
		data,
		env.Metadata,
		env.Timestamp,
	), nil
}
