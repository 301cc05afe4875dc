package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"provision-saga/internal/domain/ledger"
	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/provisioning"
	"provision-saga/internal/domain/saga"
)

// Client calls the coordinator API. Error responses are mapped back to the coordinator's sentinel
// errors, so callers branch on them exactly as they would in process.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

func WithClientHTTP(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Confirm can run a whole provisioning call on the server.
		http: &http.Client{Timeout: 3 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Quote(ctx context.Context, cfg provisioning.ResourceConfig) (provisioning.Reservation, error) {
	var r provisioning.Reservation
	err := c.do(ctx, http.MethodPost, "/api/payment/quote", cfg, &r)
	return r, err
}

func (c *Client) Initiate(ctx context.Context, r provisioning.Reservation) (payment.Charge, error) {
	var charge payment.Charge
	err := c.do(ctx, http.MethodPost, "/api/payment/initiate", InitiateRequest{Reservation: r}, &charge)
	return charge, err
}

func (c *Client) Confirm(ctx context.Context, txID string, r provisioning.Reservation) (saga.Outcome, error) {
	var out saga.Outcome
	err := c.do(ctx, http.MethodPost, "/api/payment/check-status", CheckStatusRequest{TransactionID: txID, Reservation: r}, &out)
	return out, err
}

func (c *Client) Transaction(ctx context.Context, txID string) (ledger.Record, error) {
	var rec ledger.Record
	err := c.do(ctx, http.MethodGet, "/api/transactions/"+url.PathEscape(txID), nil, &rec)
	return rec, err
}

func (c *Client) do(ctx context.Context, method, path string, body, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", saga.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", saga.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func errorFromResponse(status int, raw []byte) error {
	var body ErrorResponse
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	var sentinel error
	switch body.Code {
	case CodeInvalidRequest:
		sentinel = saga.ErrInvalidRequest
	case CodeNotFound:
		sentinel = ledger.ErrRecordNotFound
	case CodeGatewayUnavailable:
		sentinel = saga.ErrGatewayUnavailable
	case CodeLedgerUnavailable:
		sentinel = saga.ErrLedgerUnavailable
	default:
		switch {
		case status == http.StatusBadRequest:
			sentinel = saga.ErrInvalidRequest
		case status == http.StatusNotFound:
			sentinel = ledger.ErrRecordNotFound
		case status >= http.StatusInternalServerError:
			sentinel = saga.ErrGatewayUnavailable
		default:
			return fmt.Errorf("coordinator returned %d: %s", status, msg)
		}
	}
	return &responseError{status: status, msg: msg, sentinel: sentinel}
}

type responseError struct {
	status   int
	msg      string
	sentinel error
}

func (e *responseError) Error() string {
	return fmt.Sprintf("coordinator returned %d: %s", e.status, e.msg)
}

func (e *responseError) Unwrap() error { return e.sentinel }

// StatusCode returns the HTTP status of a coordinator error response, or 0.
func StatusCode(err error) int {
	var re *responseError
	if errors.As(err, &re) {
		return re.status
	}
	return 0
}
