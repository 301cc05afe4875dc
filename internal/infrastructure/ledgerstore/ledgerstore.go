// Package ledgerstore persists terminal transaction records. Records are append-only: the first
// write for a transaction ID wins and is never updated.
package ledgerstore

import (
	"context"

	"provision-saga/internal/domain/ledger"
)

// Ledger is the durable transaction ledger.
type Ledger interface {
	// Get returns ledger.ErrRecordNotFound when nothing was recorded for txID.
	Get(ctx context.Context, txID string) (ledger.Record, error)
	// PutIfAbsent writes rec unless a record with the same transaction ID exists. It returns the
	// record that is stored after the call and whether rec was the one written.
	PutIfAbsent(ctx context.Context, rec ledger.Record) (ledger.Record, bool, error)
	// ClaimSettlement binds a settlement key to txID unless another transaction holds it already.
	// It returns the transaction that holds the settlement after the call.
	ClaimSettlement(ctx context.Context, key, txID string) (string, error)
}
