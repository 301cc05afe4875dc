package ledger

import (
	"errors"
	"time"

	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/provisioning"
)

var ErrRecordNotFound = errors.New("ledger record not found")

// Status is the terminal outcome a record captures.
type Status string

const (
	StatusSuccess                       Status = "SUCCESS"
	StatusPaymentSuccessProvisionFailed Status = "PAYMENT_SUCCESS_PROVISION_FAILED"
)

// Record is written once per transaction, when the saga reaches a terminal outcome.
// Missing records mean "not resolved yet", never "failed".
type Record struct {
	TransactionID string                    `json:"transaction_id"`
	Amount        int64                     `json:"amount"`
	Status        Status                    `json:"status"`
	Reservation   provisioning.Reservation  `json:"reservation"`
	Credentials   *provisioning.Credentials `json:"credentials,omitempty"`
	Reason        string                    `json:"reason,omitempty"`
	Settlement    payment.Settlement        `json:"settlement"`
	CreatedAt     time.Time                 `json:"created_at"`
}

func NewSuccessRecord(txID string, r provisioning.Reservation, creds provisioning.Credentials, s payment.Settlement, now time.Time) Record {
	return Record{
		TransactionID: txID,
		Amount:        r.Amount,
		Status:        StatusSuccess,
		Reservation:   r,
		Credentials:   &creds,
		Settlement:    s,
		CreatedAt:     now.UTC(),
	}
}

func NewProvisionFailedRecord(txID string, r provisioning.Reservation, reason string, s payment.Settlement, now time.Time) Record {
	return Record{
		TransactionID: txID,
		Amount:        r.Amount,
		Status:        StatusPaymentSuccessProvisionFailed,
		Reservation:   r,
		Reason:        reason,
		Settlement:    s,
		CreatedAt:     now.UTC(),
	}
}
