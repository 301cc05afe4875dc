package ledgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"provision-saga/internal/domain/ledger"
	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/provisioning"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testRecord(txID string) ledger.Record {
	res := provisioning.NewReservation(provisioning.ResourceConfig{
		Name: "srv", Owner: "alice", MemoryMB: 1024, DiskMB: 1024, CPUPercent: 60,
	}, 10099)
	return ledger.NewSuccessRecord(txID, res,
		provisioning.Credentials{ServerID: "7", Username: "alice", Password: "pw"},
		payment.Settlement{AmountPaid: 10099, Direction: payment.DirectionCredit, SettledAt: testNow},
		testNow)
}

func newMockLedger(t *testing.T) (*PostgresLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresLedger(db), mock
}

func TestPostgresLedger_PutIfAbsentWrites(t *testing.T) {
	l, mock := newMockLedger(t)
	rec := testRecord("tx-1")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs("tx-1", int64(10099), "SUCCESS", sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, written, err := l.PutIfAbsent(context.Background(), rec)

	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, rec, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_PutIfAbsentKeepsExisting(t *testing.T) {
	l, mock := newMockLedger(t)
	existing := testRecord("tx-1")
	existing.Credentials.ServerID = "first"
	raw, err := json.Marshal(existing)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record")).WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(raw))

	stored, written, err := l.PutIfAbsent(context.Background(), testRecord("tx-1"))

	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, "first", stored.Credentials.ServerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_PutIfAbsentError(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).WillReturnError(errors.New("conn refused"))

	_, written, err := l.PutIfAbsent(context.Background(), testRecord("tx-1"))

	assert.Error(t, err)
	assert.False(t, written)
}

func TestPostgresLedger_GetNotFound(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record")).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	_, err := l.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_GetFailureIsNotNotFound(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record")).WillReturnError(errors.New("timeout"))

	_, err := l.Get(context.Background(), "tx-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrRecordNotFound)
}

func TestPostgresLedger_InitSchema(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS transactions")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS settlement_claims")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, l.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_ClaimSettlementFirstClaimWins(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlement_claims")).
		WithArgs("key-1", "tx-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT transaction_id")).WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}).AddRow("tx-1"))

	owner, err := l.ClaimSettlement(context.Background(), "key-1", "tx-2")

	require.NoError(t, err)
	assert.Equal(t, "tx-1", owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_ClaimSettlementError(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlement_claims")).WillReturnError(errors.New("conn refused"))

	_, err := l.ClaimSettlement(context.Background(), "key-1", "tx-1")

	assert.Error(t, err)
}
