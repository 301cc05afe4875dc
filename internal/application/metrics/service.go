package metrics

import (
	"context"

	"provision-saga/internal/common/logger"
	commonmetrics "provision-saga/internal/common/metrics"
	"provision-saga/internal/domain/events"
	"provision-saga/internal/infrastructure/dlq"
)

// Journal records every provisioning event, per transaction.
type Journal interface {
	SaveEvent(ctx context.Context, event events.Event) error
}

// IncidentStore persists operator incidents.
type IncidentStore interface {
	Persist(ctx context.Context, incident dlq.Incident) error
}

// Service counts and journals provisioning events, and records DLQ incidents for operators.
type Service struct {
	journal   Journal
	incidents IncidentStore
	metrics   commonmetrics.Collector
	logger    logger.Logger
}

func NewService(journal Journal, incidents IncidentStore, m commonmetrics.Collector, l logger.Logger) *Service {
	return &Service{
		journal:   journal,
		incidents: incidents,
		metrics:   m,
		logger:    l,
	}
}

// HandleEvent is the provisioning topic consumer. Unknown event types are journaled but not counted.
func (s *Service) HandleEvent(ctx context.Context, event events.Event) error {
	if s.journal != nil {
		if err := s.journal.SaveEvent(ctx, event); err != nil {
			s.logger.Error("Failed to journal event", logger.Err(err),
				logger.String("event_id", event.ID()),
				logger.String("transaction_id", event.AggregateID()))
		}
	}

	switch event.Type() {
	case events.TypeChargeCreated:
		return s.HandleChargeCreated(ctx, event)
	case events.TypeResourceProvisioned:
		return s.HandleResourceProvisioned(ctx, event)
	case events.TypeProvisionFailed:
		return s.HandleProvisionFailed(ctx, event)
	case events.TypeLedgerWriteFailed:
		return s.HandleLedgerWriteFailed(ctx, event)
	}
	return nil
}

func (s *Service) HandleChargeCreated(ctx context.Context, event events.Event) error {
	if data, ok := event.Data().(events.ChargeCreatedData); ok && data.Reused {
		s.metrics.IncrementCounter(commonmetrics.ChargesReused)
		return nil
	}
	s.metrics.IncrementCounter(commonmetrics.ChargesCreated)
	return nil
}

func (s *Service) HandleResourceProvisioned(ctx context.Context, event events.Event) error {
	s.metrics.IncrementCounter(commonmetrics.ResourcesProvisioned)
	s.logger.Info("Resource provisioned", logger.String("transaction_id", event.AggregateID()))
	return nil
}

func (s *Service) HandleProvisionFailed(ctx context.Context, event events.Event) error {
	s.metrics.IncrementCounter(commonmetrics.ProvisionFailures)
	s.logger.Warn("Provisioning failed after payment",
		logger.String("transaction_id", event.AggregateID()),
		logger.String("reason", failureReason(event)),
	)
	return nil
}

func (s *Service) HandleLedgerWriteFailed(ctx context.Context, event events.Event) error {
	s.metrics.IncrementCounter(commonmetrics.LedgerWriteFailures)
	s.logger.Warn("Ledger write failed",
		logger.String("transaction_id", event.AggregateID()),
		logger.String("reason", failureReason(event)),
	)
	return nil
}

// HandleIncident persists a DLQ incident. A persist failure is logged and counted, and the incident
// is still in the queue's memory for this process.
func (s *Service) HandleIncident(ctx context.Context, incident dlq.Incident) error {
	s.logger.Warn("Processing operator incident",
		logger.String("incident_id", incident.IncidentID),
		logger.String("transaction_id", incident.TransactionID),
		logger.String("kind", incident.Kind),
		logger.String("reason", incident.Reason),
	)

	if s.incidents == nil {
		return nil
	}
	if err := s.incidents.Persist(ctx, incident); err != nil {
		s.metrics.IncrementCounter(commonmetrics.IncidentPersistFails)
		s.logger.Error("Failed to persist operator incident", logger.Err(err), logger.String("incident_id", incident.IncidentID))
		return err
	}
	s.logger.Info("Operator incident persisted", logger.String("incident_id", incident.IncidentID))
	return nil
}

func failureReason(event events.Event) string {
	switch data := event.Data().(type) {
	case events.ProvisionFailedData:
		return data.Reason
	case events.LedgerWriteFailedData:
		return data.Reason
	default:
		return ""
	}
}
