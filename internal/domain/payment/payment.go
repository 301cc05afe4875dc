package payment

import (
	"strconv"
	"strings"
	"time"
)

// Direction of a gateway mutation. Only credits pay for reservations.
type Direction string

const (
	DirectionCredit Direction = "CR"
	DirectionDebit  Direction = "DB"
)

// Charge is a payable QR request issued by the gateway.
type Charge struct {
	TransactionID string    `json:"transaction_id"`
	QRPayload     string    `json:"qr_payload"`
	Amount        int64     `json:"amount"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the charge can no longer be paid at now.
// A zero ExpiresAt means the gateway did not report an expiry.
func (c Charge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Settlement is the gateway's report of money actually received on the merchant account.
type Settlement struct {
	AmountPaid      int64     `json:"amount_paid"`
	SettledAt       time.Time `json:"settled_at"`
	Direction       Direction `json:"direction"`
	CounterpartyRef string    `json:"counterparty_ref"`
	Issuer          string    `json:"issuer,omitempty"`
}

// Matches reports whether s pays exactly amount.
func (s *Settlement) Matches(amount int64) bool {
	return s != nil && s.Direction == DirectionCredit && s.AmountPaid == amount
}

// Key identifies the mutation s reports. Two reports of the same credit share a key, so a ledger can
// let only one transaction redeem it.
func (s Settlement) Key() string {
	return strings.Join([]string{
		string(s.Direction),
		strconv.FormatInt(s.AmountPaid, 10),
		s.SettledAt.UTC().Format(time.RFC3339Nano),
		s.CounterpartyRef,
		s.Issuer,
	}, "|")
}
