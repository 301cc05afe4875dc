package dlq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/events"
)

// Incident kinds. Both mean money was taken and an operator must look at the transaction.
const (
	KindProvisionFailed   = "PROVISION_FAILED"
	KindLedgerWriteFailed = "LEDGER_WRITE_FAILED"
)

var ErrClosed = errors.New("DLQ is closed")

// Incident is a dead-lettered provisioning event that needs operator follow-up.
type Incident struct {
	IncidentID    string
	TransactionID string
	Kind          string
	Reason        string
	OriginalEvent events.Event
	Details       map[string]interface{}
	OccurredAt    time.Time
}

type Handler func(ctx context.Context, incident Incident) error

type DLQ interface {
	Publish(ctx context.Context, originalEvent events.Event, kind, reason string, details map[string]interface{}) error
	Subscribe(handler Handler)
	Incidents() []Incident
	Close() error
}

// Queue is an in-process dead-letter queue. Handlers run on their own goroutine per incident
// and are detached from the publisher's context.
type Queue struct {
	log       logger.Logger
	mu        sync.RWMutex
	incidents []Incident
	handlers  []Handler
	running   bool
	maxEvents int
	wg        sync.WaitGroup
}

func NewQueue(log logger.Logger) *Queue {
	return &Queue{
		log:       log,
		running:   true,
		maxEvents: 10000,
	}
}

func (d *Queue) Publish(ctx context.Context, originalEvent events.Event, kind, reason string, details map[string]interface{}) error {
	now := time.Now().UTC()
	incident := Incident{
		IncidentID:    fmt.Sprintf("dlq_%d_%s", now.UnixNano(), originalEvent.ID()),
		TransactionID: originalEvent.AggregateID(),
		Kind:          kind,
		Reason:        reason,
		OriginalEvent: originalEvent,
		Details:       details,
		OccurredAt:    now,
	}
	if incident.Details == nil {
		incident.Details = make(map[string]interface{})
	}

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrClosed
	}
	if len(d.incidents) >= d.maxEvents {
		d.incidents = d.incidents[d.maxEvents/10:]
	}
	d.incidents = append(d.incidents, incident)
	handlers := append([]Handler(nil), d.handlers...)
	d.wg.Add(len(handlers))
	d.mu.Unlock()

	handlerCtx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go func(h Handler) {
			defer d.wg.Done()
			if err := h(handlerCtx, incident); err != nil {
				d.log.Error("Error handling DLQ incident",
					logger.Err(err),
					logger.String("incident_id", incident.IncidentID),
					logger.String("transaction_id", incident.TransactionID))
			}
		}(handler)
	}

	return nil
}

func (d *Queue) Subscribe(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler)
}

func (d *Queue) Incidents() []Incident {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Incident(nil), d.incidents...)
}

// Close rejects new incidents and waits for in-flight handlers.
func (d *Queue) Close() error {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
