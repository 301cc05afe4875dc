package events

import (
	"time"

	"github.com/google/uuid"
)

// AggregateTransaction is the aggregate every provisioning event belongs to; its ID is the transaction ID.
const AggregateTransaction = "Transaction"

type Event interface {
	ID() string
	Type() string
	AggregateID() string
	AggregateType() string
	Version() int
	Data() interface{}
	Metadata() EventMetadata
	Timestamp() time.Time
}

type EventMetadata struct {
	CorrelationID string    `json:"correlation_id"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewMetadata(correlationID, source string) EventMetadata {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return EventMetadata{CorrelationID: correlationID, Source: source, Timestamp: time.Now().UTC()}
}

type BaseEvent struct {
	eventID       string
	eventType     string
	aggregateID   string
	aggregateType string
	version       int
	data          interface{}
	metadata      EventMetadata
	timestamp     time.Time
}

func (e *BaseEvent) ID() string {
	return e.eventID
}

func (e *BaseEvent) Type() string {
	return e.eventType
}

func (e *BaseEvent) AggregateID() string {
	return e.aggregateID
}

func (e *BaseEvent) AggregateType() string {
	return e.aggregateType
}

func (e *BaseEvent) Version() int {
	return e.version
}

func (e *BaseEvent) Data() interface{} {
	return e.data
}

func (e *BaseEvent) Metadata() EventMetadata {
	return e.metadata
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newTransactionEvent builds a fresh version-1 event for the given transaction.
func newTransactionEvent(eventType, txID string, data interface{}, metadata EventMetadata) *BaseEvent {
	return NewBaseEventWithTimestamp(uuid.New().String(), eventType, txID, AggregateTransaction, 1, data, metadata, time.Now().UTC())
}

// NewBaseEventWithTimestamp rebuilds an event, typically after decoding it off the wire.
func NewBaseEventWithTimestamp(eventID, eventType, aggregateID, aggregateType string, version int, data interface{}, metadata EventMetadata, timestamp time.Time) *BaseEvent {
	return &BaseEvent{
		eventID:       eventID,
		eventType:     eventType,
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		version:       version,
		data:          data,
		metadata:      metadata,
		timestamp:     timestamp,
	}
}
