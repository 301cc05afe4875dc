package ledgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"provision-saga/internal/domain/ledger"
)

const (
	transactionsBucket = "transactions"
	claimsBucket       = "settlement_claims"
)

// BoltLedger is an embedded single-file ledger for single-node deployments.
type BoltLedger struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the ledger file at path.
func OpenBolt(path string) (*BoltLedger, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{transactionsBucket, claimsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger buckets: %w", err)
	}

	return &BoltLedger{db: db}, nil
}

func (l *BoltLedger) Close() error {
	return l.db.Close()
}

// PingContext reports whether the file is still open.
func (l *BoltLedger) PingContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(transactionsBucket)) == nil {
			return fmt.Errorf("ledger bucket missing")
		}
		return nil
	})
}

func (l *BoltLedger) Get(ctx context.Context, txID string) (ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, err
	}

	var rec ledger.Record
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(transactionsBucket)).Get([]byte(txID))
		if v == nil {
			return ledger.ErrRecordNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return ledger.Record{}, err
	}
	return rec, nil
}

// PutIfAbsent checks and writes inside one update transaction, so concurrent writers serialize.
func (l *BoltLedger) PutIfAbsent(ctx context.Context, rec ledger.Record) (ledger.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Record{}, false, err
	}

	stored := rec
	written := false
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(transactionsBucket))

		if existing := b.Get([]byte(rec.TransactionID)); existing != nil {
			return json.Unmarshal(existing, &stored)
		}

		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		written = true
		return b.Put([]byte(rec.TransactionID), raw)
	})
	if err != nil {
		return ledger.Record{}, false, fmt.Errorf("failed to save transaction %s: %w", rec.TransactionID, err)
	}
	return stored, written, nil
}

func (l *BoltLedger) ClaimSettlement(ctx context.Context, key, txID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	owner := txID
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(claimsBucket))
		if existing := b.Get([]byte(key)); existing != nil {
			owner = string(existing)
			return nil
		}
		return b.Put([]byte(key), []byte(txID))
	})
	if err != nil {
		return "", fmt.Errorf("failed to claim settlement for %s: %w", txID, err)
	}
	return owner, nil
}
