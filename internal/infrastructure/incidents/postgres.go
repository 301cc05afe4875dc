package incidents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"provision-saga/internal/domain/events"
	"provision-saga/internal/infrastructure/dlq"
)

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS operator_incidents (
			incident_id     UUID PRIMARY KEY,
			dlq_incident_id TEXT NOT NULL,
			transaction_id  TEXT NOT NULL,
			kind            TEXT NOT NULL,
			reason          TEXT NOT NULL,
			original_event  JSONB,
			details         JSONB,
			occurred_at     TIMESTAMPTZ NOT NULL,
			resolved        BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at     TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL
		)
	`

	insertIncidentQuery = `
		INSERT INTO operator_incidents (
			incident_id, dlq_incident_id, transaction_id, kind, reason,
			original_event, details, occurred_at, resolved, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	selectUnresolvedQuery = `
		SELECT incident_id, dlq_incident_id, transaction_id, kind, reason,
		       original_event, details, occurred_at, resolved, created_at
		FROM operator_incidents
		WHERE resolved = FALSE
		ORDER BY created_at DESC
		LIMIT $1
	`

	updateResolvedQuery = `
		UPDATE operator_incidents
		SET resolved = TRUE, resolved_at = NOW()
		WHERE incident_id = $1
	`
)

// Incident is a persisted operator incident row.
type Incident struct {
	IncidentID    uuid.UUID       `json:"incident_id"`
	DLQIncidentID string          `json:"dlq_incident_id"`
	TransactionID string          `json:"transaction_id"`
	Kind          string          `json:"kind"`
	Reason        string          `json:"reason"`
	OriginalEvent json.RawMessage `json:"original_event,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Resolved      bool            `json:"resolved"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PostgresLog stores dead-lettered incidents in the operator_incidents table.
type PostgresLog struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db, now: time.Now}
}

func (l *PostgresLog) InitSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create operator_incidents table: %w", err)
	}
	return nil
}

// Persist is a dlq.Handler.
func (l *PostgresLog) Persist(ctx context.Context, incident dlq.Incident) error {
	originalEventJSON, err := serializeEvent(incident.OriginalEvent)
	if err != nil {
		return fmt.Errorf("failed to serialize original event: %w", err)
	}

	detailsJSON, err := json.Marshal(incident.Details)
	if err != nil {
		return fmt.Errorf("failed to serialize incident details: %w", err)
	}

	_, err = l.db.ExecContext(ctx, insertIncidentQuery,
		uuid.New(),
		incident.IncidentID,
		incident.TransactionID,
		incident.Kind,
		incident.Reason,
		string(originalEventJSON),
		string(detailsJSON),
		incident.OccurredAt,
		false,
		l.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to persist incident for %s: %w", incident.TransactionID, err)
	}

	return nil
}

func (l *PostgresLog) ListUnresolved(ctx context.Context, limit int) ([]Incident, error) {
	rows, err := l.db.QueryContext(ctx, selectUnresolvedQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var inc Incident
		var originalEventJSON, detailsJSON sql.NullString

		err := rows.Scan(
			&inc.IncidentID,
			&inc.DLQIncidentID,
			&inc.TransactionID,
			&inc.Kind,
			&inc.Reason,
			&originalEventJSON,
			&detailsJSON,
			&inc.OccurredAt,
			&inc.Resolved,
			&inc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}

		if originalEventJSON.Valid {
			inc.OriginalEvent = []byte(originalEventJSON.String)
		}
		if detailsJSON.Valid {
			inc.Details = []byte(detailsJSON.String)
		}

		out = append(out, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}

	return out, nil
}

func (l *PostgresLog) MarkResolved(ctx context.Context, incidentID uuid.UUID) error {
	if _, err := l.db.ExecContext(ctx, updateResolvedQuery, incidentID); err != nil {
		return fmt.Errorf("failed to mark incident as resolved: %w", err)
	}
	return nil
}

func serializeEvent(event events.Event) ([]byte, error) {
	if event == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]interface{}{
		"event_id":       event.ID(),
		"event_type":     event.Type(),
		"aggregate_id":   event.AggregateID(),
		"aggregate_type": event.AggregateType(),
		"event_version":  event.Version(),
		"data":           event.Data(),
		"metadata":       event.Metadata(),
		"timestamp":      event.Timestamp(),
	})
}
