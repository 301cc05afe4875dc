package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/payment"
)

const (
	createPaymentPath = "/api/orkut/createpayment"
	checkStatusPath   = "/api/orkut/cekstatus"
	settlementLayout  = "2006-01-02 15:04:05"
	maxBodyBytes      = 1 << 20
)

// QRISConfig configures the HTTP client.
type QRISConfig struct {
	BaseURL   string
	APIKey    string
	QRCode    string
	ChargeTTL time.Duration
	Timeout   time.Duration
}

// QRISClient is the HTTP client for the orkut-style QRIS API.
type QRISClient struct {
	cfg   QRISConfig
	http  *http.Client
	retry RetryPolicy
	log   logger.Logger
	now   func() time.Time
	zone  *time.Location
}

type QRISOption func(*QRISClient)

func WithHTTPClient(c *http.Client) QRISOption {
	return func(q *QRISClient) { q.http = c }
}

func WithRetryPolicy(p RetryPolicy) QRISOption {
	return func(q *QRISClient) { q.retry = p }
}

func NewQRISClient(cfg QRISConfig, log logger.Logger, opts ...QRISOption) *QRISClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	q := &QRISClient{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: DefaultRetryPolicy(),
		log:   log,
		now:   time.Now,
		zone:  time.FixedZone("WIB", 7*60*60),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type chargeData struct {
	QRImageURL     string `json:"qrImageUrl"`
	Amount         string `json:"amount"`
	TransactionID  string `json:"transactionId"`
	ExpirationTime string `json:"expirationTime"`
}

type mutationData struct {
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	Type       string `json:"type"`
	BrandName  string `json:"brand_name"`
	IssuerReff string `json:"issuer_reff"`
	BuyerReff  string `json:"buyer_reff"`
}

func (q *QRISClient) CreateCharge(ctx context.Context, amount int64) (payment.Charge, error) {
	if amount <= 0 {
		return payment.Charge{}, ErrInvalidAmount
	}

	params := url.Values{
		"apikey": {q.cfg.APIKey},
		"amount": {strconv.FormatInt(amount, 10)},
		"codeqr": {q.cfg.QRCode},
	}

	var data chargeData
	err := q.retry.Do(ctx, func(ctx context.Context) error {
		return q.call(ctx, createPaymentPath, params, &data)
	})
	if err != nil {
		return payment.Charge{}, fmt.Errorf("%w: create charge: %v", ErrUnavailable, err)
	}
	if data.TransactionID == "" || data.QRImageURL == "" {
		return payment.Charge{}, fmt.Errorf("%w: create charge: response missing transaction id or qr", ErrUnavailable)
	}

	charged, err := parseAmount(data.Amount)
	if err != nil || charged != amount {
		return payment.Charge{}, fmt.Errorf("%w: create charge: gateway charged %q, requested %d", ErrUnavailable, data.Amount, amount)
	}

	charge := payment.Charge{
		TransactionID: data.TransactionID,
		QRPayload:     data.QRImageURL,
		Amount:        amount,
	}
	if t, err := time.Parse(time.RFC3339Nano, data.ExpirationTime); err == nil {
		charge.ExpiresAt = t.UTC()
	} else if q.cfg.ChargeTTL > 0 {
		charge.ExpiresAt = q.now().Add(q.cfg.ChargeTTL).UTC()
	}

	q.log.Info("QRIS charge created",
		logger.String("transaction_id", charge.TransactionID),
		logger.Field{Key: "amount", Value: amount})
	return charge, nil
}

func (q *QRISClient) QuerySettlement(ctx context.Context, merchant Merchant) (*payment.Settlement, error) {
	params := url.Values{
		"apikey":   {q.cfg.APIKey},
		"merchant": {merchant.ID},
		"keyorkut": {merchant.Key},
	}

	var raw json.RawMessage
	err := q.retry.Do(ctx, func(ctx context.Context) error {
		return q.call(ctx, checkStatusPath, params, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query settlement: %v", ErrUnavailable, err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return nil, nil
	}

	var data mutationData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: decode settlement: %v", ErrUnavailable, err)
	}
	if data.Type == "" && data.Amount == "" {
		return nil, nil
	}

	paid, err := parseAmount(data.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: settlement amount %q: %v", ErrUnavailable, data.Amount, err)
	}

	s := &payment.Settlement{
		AmountPaid:      paid,
		Direction:       payment.Direction(strings.ToUpper(strings.TrimSpace(data.Type))),
		CounterpartyRef: data.BuyerReff,
		Issuer:          data.IssuerReff,
	}
	if t, err := time.ParseInLocation(settlementLayout, data.Date, q.zone); err == nil {
		s.SettledAt = t.UTC()
	}
	return s, nil
}

// call performs one GET and decodes the data field of the response envelope into out.
func (q *QRISClient) call(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return retryable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return retryable(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retryable(fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		return errors.New("gateway rejected request: " + env.Message)
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// parseAmount accepts "10099" and "10099.00"; fractional rupiah are rejected.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if whole, frac, ok := strings.Cut(s, "."); ok {
		if strings.Trim(frac, "0") != "" {
			return 0, fmt.Errorf("fractional amount %q", s)
		}
		s = whole
	}
	return strconv.ParseInt(s, 10, 64)
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
