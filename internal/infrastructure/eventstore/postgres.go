package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"provision-saga/internal/domain/events"
)

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS provisioning_events (
			sequence_number BIGSERIAL PRIMARY KEY,
			event_id        TEXT NOT NULL UNIQUE,
			aggregate_id    TEXT NOT NULL,
			aggregate_type  TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			event_version   INT NOT NULL,
			event_data      JSONB NOT NULL,
			event_metadata  JSONB NOT NULL,
			timestamp       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS provisioning_events_aggregate_idx ON provisioning_events (aggregate_id, sequence_number)
	`

	// Consumers see events at least once.
	insertEventQuery = `
		INSERT INTO provisioning_events (
			event_id, aggregate_id, aggregate_type, event_type,
			event_version, event_data, event_metadata, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	selectEventsByAggregateQuery = `
		SELECT event_id, aggregate_id, aggregate_type, event_type,
		       event_version, event_data, event_metadata, timestamp
		FROM provisioning_events
		WHERE aggregate_id = $1
		ORDER BY sequence_number ASC
	`
)

type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (es *PostgresEventStore) InitSchema(ctx context.Context) error {
	if _, err := es.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create provisioning_events table: %w", err)
	}
	return nil
}

func (es *PostgresEventStore) SaveEvent(ctx context.Context, event events.Event) error {
	eventData, err := json.Marshal(event.Data())
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	_, err = es.db.ExecContext(ctx, insertEventQuery,
		event.ID(),
		event.AggregateID(),
		event.AggregateType(),
		event.Type(),
		event.Version(),
		string(eventData),
		string(metadata),
		event.Timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	return nil
}

func (es *PostgresEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]events.Event, error) {
	rows, err := es.db.QueryContext(ctx, selectEventsByAggregateQuery, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var loadedEvents []events.Event
	for rows.Next() {
		var r row
		err := rows.Scan(&r.eventID, &r.aggregateID, &r.aggregateType, &r.eventType, &r.version, &r.data, &r.metadata, &r.timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event, err := r.reconstruct()
		if err != nil {
			return nil, fmt.Errorf("failed to reconstruct event %s: %w", r.eventID, err)
		}

		loadedEvents = append(loadedEvents, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return loadedEvents, nil
}

type row struct {
	eventID       string
	aggregateID   string
	aggregateType string
	eventType     string
	version       int
	data          []byte
	metadata      []byte
	timestamp     sql.NullTime
}

func (r row) reconstruct() (events.Event, error) {
	var metadata events.EventMetadata
	if len(r.metadata) > 0 {
		if err := json.Unmarshal(r.metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	data, err := events.DecodeData(r.eventType, r.data)
	if err != nil {
		return nil, err
	}

	return events.NewBaseEventWithTimestamp(r.eventID, r.eventType, r.aggregateID, r.aggregateType, r.version, data, metadata, r.timestamp.Time.UTC()), nil
}
