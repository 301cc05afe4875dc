package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/ledger"
	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/provisioning"
	"provision-saga/internal/domain/saga"

	"github.com/gin-gonic/gin"
)

// Error codes carried in error bodies so clients can map them back to sentinels.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeGatewayUnavailable = "gateway_unavailable"
	CodeLedgerUnavailable  = "ledger_unavailable"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal"
)

// PaymentService is the coordinator surface served over HTTP.
type PaymentService interface {
	Quote(ctx context.Context, cfg provisioning.ResourceConfig) (provisioning.Reservation, error)
	Initiate(ctx context.Context, r provisioning.Reservation) (payment.Charge, error)
	Confirm(ctx context.Context, txID string, r provisioning.Reservation) (saga.Outcome, error)
	Transaction(ctx context.Context, txID string) (ledger.Record, error)
}

type InitiateRequest struct {
	Reservation provisioning.Reservation `json:"reservation"`
}

type CheckStatusRequest struct {
	TransactionID string                   `json:"transaction_id"`
	Reservation   provisioning.Reservation `json:"reservation"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type PaymentHandler struct {
	service PaymentService
	logger  logger.Logger
}

func NewPaymentHandler(s PaymentService, l logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: s,
		logger:  l,
	}
}

func (h *PaymentHandler) Quote(c *gin.Context) {
	var req provisioning.ResourceConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	r, err := h.service.Quote(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	charge, err := h.service.Initiate(c.Request.Context(), req.Reservation)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, charge)
}

// CheckStatus answers 200 for every outcome, including NOT_YET_PAID.
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	var req CheckStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	if strings.TrimSpace(req.TransactionID) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "transaction_id is required", Code: CodeInvalidRequest})
		return
	}

	out, err := h.service.Confirm(c.Request.Context(), req.TransactionID, req.Reservation)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	txID := c.Param("id")
	if txID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "transaction id is required", Code: CodeInvalidRequest})
		return
	}

	rec, err := h.service.Transaction(c.Request.Context(), txID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *PaymentHandler) writeError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", logger.Err(err), logger.String("path", c.FullPath()))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// StatusFor maps a coordinator error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, saga.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, ledger.ErrRecordNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, saga.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, CodeGatewayUnavailable
	case errors.Is(err, saga.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, CodeLedgerUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
