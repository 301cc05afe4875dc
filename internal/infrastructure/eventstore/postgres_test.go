package eventstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provision-saga/internal/domain/events"
)

func newMockStore(t *testing.T) (*PostgresEventStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresEventStore(db), mock
}

func TestPostgresEventStore_SaveEvent(t *testing.T) {
	store, mock := newMockStore(t)
	ev := events.NewResourceProvisioned(events.ResourceProvisionedData{TransactionID: "tx-1", ServerID: "42"}, events.NewMetadata("tx-1", "test"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provisioning_events")).
		WithArgs(ev.ID(), "tx-1", events.AggregateTransaction, events.TypeResourceProvisioned, 1,
			sqlmock.AnyArg(), sqlmock.AnyArg(), ev.Timestamp()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_SaveEventError(t *testing.T) {
	store, mock := newMockStore(t)
	ev := events.NewChargeCreated(events.ChargeCreatedData{TransactionID: "tx-1"}, events.NewMetadata("tx-1", "test"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO provisioning_events")).WillReturnError(errors.New("conn reset"))

	assert.Error(t, store.SaveEvent(context.Background(), ev))
}

func TestPostgresEventStore_LoadEvents(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"event_id", "aggregate_id", "aggregate_type", "event_type", "event_version", "event_data", "event_metadata", "timestamp"}).
		AddRow("e1", "tx-1", events.AggregateTransaction, events.TypeChargeCreated, 1,
			[]byte(`{"transaction_id":"tx-1","amount":22099}`), []byte(`{"correlation_id":"tx-1","source":"saga-coordinator"}`), ts).
		AddRow("e2", "tx-1", events.AggregateTransaction, events.TypeProvisionFailed, 1,
			[]byte(`{"transaction_id":"tx-1","reason":"panel down"}`), []byte(`{}`), ts.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM provisioning_events")).WithArgs("tx-1").WillReturnRows(rows)

	got, err := store.LoadEvents(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	created, ok := got[0].Data().(events.ChargeCreatedData)
	require.True(t, ok)
	assert.Equal(t, int64(22099), created.Amount)
	assert.Equal(t, "saga-coordinator", got[0].Metadata().Source)

	failed, ok := got[1].Data().(events.ProvisionFailedData)
	require.True(t, ok)
	assert.Equal(t, "panel down", failed.Reason)
	assert.True(t, ts.Add(time.Minute).Equal(got[1].Timestamp()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
