// Package gateway talks to the QRIS payment gateway: it creates charges and reads the most recent
// settlement on the merchant account.
package gateway

import (
	"context"
	"errors"

	"provision-saga/internal/domain/payment"
)

var (
	// ErrUnavailable wraps every transport, status and decoding failure from the gateway.
	ErrUnavailable = errors.New("gateway unavailable")

	ErrInvalidAmount = errors.New("charge amount must be greater than 0")
)

// Merchant identifies the account whose mutations QuerySettlement reads.
type Merchant struct {
	ID  string
	Key string
}

// Gateway is the payment side of the saga.
type Gateway interface {
	// CreateCharge asks the gateway for a payable QR for exactly amount.
	CreateCharge(ctx context.Context, amount int64) (payment.Charge, error)
	// QuerySettlement returns the latest mutation on the merchant account, or nil when there is none.
	// The query is merchant-wide, not scoped to a transaction; callers match by amount.
	QuerySettlement(ctx context.Context, merchant Merchant) (*payment.Settlement, error)
}
