package incidents

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"provision-saga/internal/domain/events"
	"provision-saga/internal/infrastructure/dlq"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLog(t *testing.T) (*PostgresLog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := NewPostgresLog(db)
	l.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return l, mock
}

func TestPostgresLog_Persist(t *testing.T) {
	l, mock := newMockLog(t)
	ev := events.NewProvisionFailed(events.ProvisionFailedData{TransactionID: "tx-1", Reason: "panel down"}, events.NewMetadata("", "test"))
	occurred := time.Date(2026, 5, 1, 11, 59, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO operator_incidents")).
		WithArgs(sqlmock.AnyArg(), "dlq_1", "tx-1", dlq.KindProvisionFailed, "panel down",
			sqlmock.AnyArg(), `{"attempt":1}`, occurred, false, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := l.Persist(context.Background(), dlq.Incident{
		IncidentID:    "dlq_1",
		TransactionID: "tx-1",
		Kind:          dlq.KindProvisionFailed,
		Reason:        "panel down",
		OriginalEvent: ev,
		Details:       map[string]interface{}{"attempt": 1},
		OccurredAt:    occurred,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_PersistWrapsDBError(t *testing.T) {
	l, mock := newMockLog(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO operator_incidents")).WillReturnError(errors.New("conn reset"))

	err := l.Persist(context.Background(), dlq.Incident{TransactionID: "tx-2"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tx-2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_ListUnresolved(t *testing.T) {
	l, mock := newMockLog(t)
	id := uuid.New()
	at := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"incident_id", "dlq_incident_id", "transaction_id", "kind", "reason",
		"original_event", "details", "occurred_at", "resolved", "created_at"}).
		AddRow(id.String(), "dlq_1", "tx-1", dlq.KindLedgerWriteFailed, "db down", `{"event_type":"LedgerWriteFailed"}`, nil, at, false, at)
	mock.ExpectQuery(regexp.QuoteMeta("FROM operator_incidents")).WithArgs(50).WillReturnRows(rows)

	got, err := l.ListUnresolved(context.Background(), 50)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].IncidentID)
	assert.Equal(t, "tx-1", got[0].TransactionID)
	assert.JSONEq(t, `{"event_type":"LedgerWriteFailed"}`, string(got[0].OriginalEvent))
	assert.Nil(t, got[0].Details)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_MarkResolved(t *testing.T) {
	l, mock := newMockLog(t)
	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE operator_incidents")).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, l.MarkResolved(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}
