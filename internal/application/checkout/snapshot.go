package checkout

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/provisioning"
)

// SnapshotVersion is bumped whenever the stored layout changes. Older tokens fail to decode
// and the session asks the user to start over.
const SnapshotVersion = 1

// URL query keys carrying the live charge.
const (
	QueryTransactionID = "transaction_id"
	QueryQRPayload     = "qr_image_url"
	QueryExpiration    = "payment_expiration"
)

var (
	ErrSnapshotCorrupt = errors.New("session snapshot is corrupt")
	ErrSnapshotVersion = errors.New("session snapshot version is not supported")
)

// Snapshot is what survives a reload: the reservation, plus the charge once one exists.
type Snapshot struct {
	Version       int                      `json:"version"`
	Reservation   provisioning.Reservation `json:"reservation"`
	TransactionID string                   `json:"transaction_id,omitempty"`
	QRPayload     string                   `json:"qr_payload,omitempty"`
	ExpiresAt     time.Time                `json:"expires_at,omitempty"`
}

func NewSnapshot(r provisioning.Reservation) Snapshot {
	return Snapshot{Version: SnapshotVersion, Reservation: r}
}

// WithCharge returns a copy of s bound to charge c.
func (s Snapshot) WithCharge(c payment.Charge) Snapshot {
	s.TransactionID = c.TransactionID
	s.QRPayload = c.QRPayload
	s.ExpiresAt = c.ExpiresAt
	return s
}

// Charge rebuilds the charge the snapshot is bound to.
func (s Snapshot) Charge() payment.Charge {
	return payment.Charge{
		TransactionID: s.TransactionID,
		QRPayload:     s.QRPayload,
		Amount:        s.Reservation.Amount,
		ExpiresAt:     s.ExpiresAt,
	}
}

// EncodeSnapshot renders s as a URL-safe base64 JSON token.
func EncodeSnapshot(s Snapshot) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeSnapshot parses a token produced by EncodeSnapshot and checks it describes a complete reservation.
func DecodeSnapshot(token string) (Snapshot, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	if err := s.Reservation.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return s, nil
}

// ChargeQuery returns q with the charge fields set.
func ChargeQuery(q url.Values, c payment.Charge) url.Values {
	out := cloneQuery(q)
	out.Set(QueryTransactionID, c.TransactionID)
	out.Set(QueryQRPayload, c.QRPayload)
	if c.ExpiresAt.IsZero() {
		out.Set(QueryExpiration, "N/A")
	} else {
		out.Set(QueryExpiration, c.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return out
}

// ChargeFromQuery reads the charge fields back. ok is false when no transaction ID is present.
// An unparseable expiration is treated as "no expiry reported".
func ChargeFromQuery(q url.Values) (payment.Charge, bool) {
	txID := strings.TrimSpace(q.Get(QueryTransactionID))
	if txID == "" {
		return payment.Charge{}, false
	}
	c := payment.Charge{TransactionID: txID, QRPayload: q.Get(QueryQRPayload)}
	if t, err := time.Parse(time.RFC3339, q.Get(QueryExpiration)); err == nil {
		c.ExpiresAt = t.UTC()
	}
	return c, true
}

// StripChargeQuery returns q without the charge fields.
func StripChargeQuery(q url.Values) url.Values {
	out := cloneQuery(q)
	out.Del(QueryTransactionID)
	out.Del(QueryQRPayload)
	out.Del(QueryExpiration)
	return out
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
