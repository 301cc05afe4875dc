package saga

import (
	"provision-saga/internal/domain/ledger"
	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/provisioning"
)

// OutcomeKind is the result of one confirmation attempt.
type OutcomeKind string

const (
	// OutcomeNotYetPaid is the steady state while the user has not paid. Not an error.
	OutcomeNotYetPaid OutcomeKind = "NOT_YET_PAID"
	// OutcomeProvisioned means payment matched and the resource exists.
	OutcomeProvisioned OutcomeKind = "PROVISIONED"
	// OutcomePaymentOkProvisionFailed means the money was taken but provisioning failed.
	// Terminal for automatic flows; an operator has to follow up.
	OutcomePaymentOkProvisionFailed OutcomeKind = "PAYMENT_OK_PROVISION_FAILED"
)

type Outcome struct {
	Kind          OutcomeKind               `json:"kind"`
	TransactionID string                    `json:"transaction_id"`
	Credentials   *provisioning.Credentials `json:"credentials,omitempty"`
	Reason        string                    `json:"reason,omitempty"`
	Settlement    *payment.Settlement       `json:"settlement,omitempty"`
}

func NotYetPaid(txID string) Outcome {
	return Outcome{Kind: OutcomeNotYetPaid, TransactionID: txID}
}

func Provisioned(txID string, creds provisioning.Credentials, s payment.Settlement) Outcome {
	return Outcome{Kind: OutcomeProvisioned, TransactionID: txID, Credentials: &creds, Settlement: &s}
}

func PaymentOkProvisionFailed(txID, reason string, s payment.Settlement) Outcome {
	return Outcome{Kind: OutcomePaymentOkProvisionFailed, TransactionID: txID, Reason: reason, Settlement: &s}
}

// IsTerminal returns true once the outcome can no longer change for the transaction.
func (o Outcome) IsTerminal() bool {
	return o.Kind == OutcomeProvisioned || o.Kind == OutcomePaymentOkProvisionFailed
}

// OutcomeFromRecord rebuilds the outcome a ledger record stands for.
func OutcomeFromRecord(rec ledger.Record) Outcome {
	settlement := rec.Settlement
	switch rec.Status {
	case ledger.StatusSuccess:
		out := Outcome{Kind: OutcomeProvisioned, TransactionID: rec.TransactionID, Settlement: &settlement}
		if rec.Credentials != nil {
			creds := *rec.Credentials
			out.Credentials = &creds
		}
		return out
	default:
		return Outcome{Kind: OutcomePaymentOkProvisionFailed, TransactionID: rec.TransactionID, Reason: rec.Reason, Settlement: &settlement}
	}
}
