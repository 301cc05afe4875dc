package saga

import "errors"

// Error taxonomy surfaced at the coordinator boundary. Adapter errors are wrapped into one of these;
// callers branch with errors.Is and never look at raw adapter errors.
var (
	// ErrInvalidRequest: missing or malformed reservation fields. Not retried.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrGatewayUnavailable: charge creation or settlement query failed. Retried by user action.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrLedgerUnavailable: the ledger could not be read, so idempotency cannot be guaranteed.
	ErrLedgerUnavailable = errors.New("transaction ledger unavailable")
	// ErrSessionRecovery: client state on reload was missing or corrupt.
	ErrSessionRecovery = errors.New("payment session could not be recovered")
	// ErrChargeExpired: the charge expired before a matching settlement arrived.
	ErrChargeExpired = errors.New("payment charge expired")
	// ErrInvalidTransition: a client step change the state table does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
)
