package ledgerstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"provision-saga/internal/domain/ledger"
)

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			amount         BIGINT NOT NULL,
			status         TEXT NOT NULL,
			record         JSONB NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL
		)
	`

	createClaimsTableQuery = `
		CREATE TABLE IF NOT EXISTS settlement_claims (
			settlement_key TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			claimed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	insertClaimQuery = `
		INSERT INTO settlement_claims (settlement_key, transaction_id)
		VALUES ($1, $2)
		ON CONFLICT (settlement_key) DO NOTHING
	`

	selectClaimQuery = `
		SELECT transaction_id
		FROM settlement_claims
		WHERE settlement_key = $1
	`

	insertRecordQuery = `
		INSERT INTO transactions (transaction_id, amount, status, record, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	selectRecordQuery = `
		SELECT record
		FROM transactions
		WHERE transaction_id = $1
	`
)

// PostgresLedger stores one row per transaction; the primary key enforces put-if-absent.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) InitSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, createClaimsTableQuery); err != nil {
		return fmt.Errorf("failed to create settlement_claims table: %w", err)
	}
	return nil
}

func (l *PostgresLedger) PingContext(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *PostgresLedger) Get(ctx context.Context, txID string) (ledger.Record, error) {
	var raw []byte
	err := l.db.QueryRowContext(ctx, selectRecordQuery, txID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, ledger.ErrRecordNotFound
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("failed to load transaction %s: %w", txID, err)
	}

	var rec ledger.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ledger.Record{}, fmt.Errorf("failed to decode transaction %s: %w", txID, err)
	}
	return rec, nil
}

func (l *PostgresLedger) PutIfAbsent(ctx context.Context, rec ledger.Record) (ledger.Record, bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return ledger.Record{}, false, fmt.Errorf("failed to encode transaction %s: %w", rec.TransactionID, err)
	}

	res, err := l.db.ExecContext(ctx, insertRecordQuery,
		rec.TransactionID,
		rec.Amount,
		string(rec.Status),
		string(raw),
		rec.CreatedAt,
	)
	if err != nil {
		return ledger.Record{}, false, fmt.Errorf("failed to save transaction %s: %w", rec.TransactionID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Record{}, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return rec, true, nil
	}

	stored, err := l.Get(ctx, rec.TransactionID)
	if err != nil {
		return ledger.Record{}, false, err
	}
	return stored, false, nil
}

func (l *PostgresLedger) ClaimSettlement(ctx context.Context, key, txID string) (string, error) {
	if _, err := l.db.ExecContext(ctx, insertClaimQuery, key, txID); err != nil {
		return "", fmt.Errorf("failed to claim settlement for %s: %w", txID, err)
	}

	var owner string
	if err := l.db.QueryRowContext(ctx, selectClaimQuery, key).Scan(&owner); err != nil {
		return "", fmt.Errorf("failed to load settlement claim: %w", err)
	}
	return owner, nil
}
