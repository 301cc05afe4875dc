package events

import (
	"time"
)

const (
	TypeChargeCreated       = "ChargeCreated"
	TypeResourceProvisioned = "ResourceProvisioned"
	TypeProvisionFailed     = "ProvisionFailed"
	TypeLedgerWriteFailed   = "LedgerWriteFailed"
)

type ChargeCreatedData struct {
	TransactionID string    `json:"transaction_id"`
	Owner         string    `json:"owner"`
	Amount        int64     `json:"amount"`
	Fingerprint   string    `json:"fingerprint"`
	ExpiresAt     time.Time `json:"expires_at"`
	Reused        bool      `json:"reused"`
}

type ChargeCreated struct {
	*BaseEvent
}

func NewChargeCreated(data ChargeCreatedData, metadata EventMetadata) *ChargeCreated {
	return &ChargeCreated{BaseEvent: newTransactionEvent(TypeChargeCreated, data.TransactionID, data, metadata)}
}

type ResourceProvisionedData struct {
	TransactionID string    `json:"transaction_id"`
	Owner         string    `json:"owner"`
	Amount        int64     `json:"amount"`
	ServerID      string    `json:"server_id"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

type ResourceProvisioned struct {
	*BaseEvent
}

func NewResourceProvisioned(data ResourceProvisionedData, metadata EventMetadata) *ResourceProvisioned {
	return &ResourceProvisioned{BaseEvent: newTransactionEvent(TypeResourceProvisioned, data.TransactionID, data, metadata)}
}

// ProvisionFailedData is emitted after the payment matched but the resource could not be created.
type ProvisionFailedData struct {
	TransactionID string    `json:"transaction_id"`
	Owner         string    `json:"owner"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}

type ProvisionFailed struct {
	*BaseEvent
}

func NewProvisionFailed(data ProvisionFailedData, metadata EventMetadata) *ProvisionFailed {
	return &ProvisionFailed{BaseEvent: newTransactionEvent(TypeProvisionFailed, data.TransactionID, data, metadata)}
}

type LedgerWriteFailedData struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}

type LedgerWriteFailed struct {
	*BaseEvent
}

func NewLedgerWriteFailed(data LedgerWriteFailedData, metadata EventMetadata) *LedgerWriteFailed {
	return &LedgerWriteFailed{BaseEvent: newTransactionEvent(TypeLedgerWriteFailed, data.TransactionID, data, metadata)}
}
