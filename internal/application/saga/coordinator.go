// Package saga coordinates a paid resource request: it prices and charges a reservation, and
// confirms it by matching the merchant settlement and provisioning exactly once per transaction.
package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"provision-saga/internal/common/configs"
	"provision-saga/internal/common/logger"
	"provision-saga/internal/common/metrics"
	"provision-saga/internal/domain/events"
	"provision-saga/internal/domain/ledger"
	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/pricing"
	"provision-saga/internal/domain/provisioning"
	"provision-saga/internal/domain/saga"
	"provision-saga/internal/infrastructure/dlq"
	"provision-saga/internal/infrastructure/eventbus"
	"provision-saga/internal/infrastructure/gateway"
	"provision-saga/internal/infrastructure/ledgerstore"
	"provision-saga/internal/infrastructure/provisioner"
)

const defaultConfirmTimeout = 2 * time.Minute

// Dependencies wires the coordinator. Charges, Locker, Publisher, Incidents and Metrics are optional.
type Dependencies struct {
	Pricing     *pricing.Engine
	Gateway     gateway.Gateway
	Merchant    gateway.Merchant
	Provisioner provisioner.Provisioner
	Ledger      ledgerstore.Ledger
	Charges     ChargeRegistry
	Locker      Locker
	Publisher   eventbus.Publisher
	Incidents   dlq.DLQ
	Metrics     metrics.Collector
	Logger      logger.Logger
}

type Coordinator struct {
	pricing        *pricing.Engine
	gateway        gateway.Gateway
	merchant       gateway.Merchant
	provisioner    provisioner.Provisioner
	ledger         ledgerstore.Ledger
	charges        ChargeRegistry
	locker         Locker
	publisher      eventbus.Publisher
	incidents      dlq.DLQ
	metrics        metrics.Collector
	logger         logger.Logger
	flights        singleflight.Group
	confirmTimeout time.Duration
	now            func() time.Time

	// resolved holds records whose ledger write failed. An entry is dropped once a retry lands it.
	resolvedMu sync.RWMutex
	resolved   map[string]ledger.Record
}

func NewCoordinator(d Dependencies) (*Coordinator, error) {
	if d.Pricing == nil || d.Gateway == nil || d.Provisioner == nil || d.Ledger == nil {
		return nil, errors.New("coordinator requires pricing, gateway, provisioner and ledger")
	}

	c := &Coordinator{
		pricing:        d.Pricing,
		gateway:        d.Gateway,
		merchant:       d.Merchant,
		provisioner:    d.Provisioner,
		ledger:         d.Ledger,
		charges:        d.Charges,
		locker:         d.Locker,
		publisher:      d.Publisher,
		incidents:      d.Incidents,
		metrics:        d.Metrics,
		logger:         d.Logger,
		confirmTimeout: defaultConfirmTimeout,
		now:            time.Now,
		resolved:       make(map[string]ledger.Record),
	}
	if c.charges == nil {
		c.charges = NewMemoryChargeRegistry(configs.DefaultChargeTTL)
	}
	if c.locker == nil {
		c.locker = NewKeyedLocker()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewMockCollector()
	}
	if c.logger == nil {
		c.logger = logger.NewNopLogger()
	}
	return c, nil
}

// Quote prices cfg and returns the reservation the user will be asked to pay.
func (c *Coordinator) Quote(_ context.Context, cfg provisioning.ResourceConfig) (provisioning.Reservation, error) {
	if err := cfg.Validate(); err != nil {
		return provisioning.Reservation{}, fmt.Errorf("%w: %v", saga.ErrInvalidRequest, err)
	}
	r, _, err := c.pricing.Quote(cfg)
	if err != nil {
		return provisioning.Reservation{}, fmt.Errorf("%w: %v", saga.ErrInvalidRequest, err)
	}
	return r, nil
}

// Initiate returns a payable charge for r. A still-live charge for the same reservation is reused.
func (c *Coordinator) Initiate(ctx context.Context, r provisioning.Reservation) (payment.Charge, error) {
	if err := r.Validate(); err != nil {
		return payment.Charge{}, fmt.Errorf("%w: %v", saga.ErrInvalidRequest, err)
	}
	if err := c.pricing.Verify(r); err != nil {
		return payment.Charge{}, fmt.Errorf("%w: %v", saga.ErrInvalidRequest, err)
	}

	fingerprint := r.Fingerprint()
	v, err, _ := c.flights.Do("initiate:"+fingerprint, func() (interface{}, error) {
		return c.initiate(ctx, r, fingerprint)
	})
	if err != nil {
		return payment.Charge{}, err
	}
	return v.(payment.Charge), nil
}

func (c *Coordinator) initiate(ctx context.Context, r provisioning.Reservation, fingerprint string) (payment.Charge, error) {
	existing, ok, err := c.charges.Lookup(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("Charge registry lookup failed, creating a new charge", logger.Err(err))
	} else if ok && !existing.Expired(c.now()) {
		c.metrics.IncrementCounter(metrics.ChargesReused)
		c.logger.Info("Reusing live charge", logger.String("transaction_id", existing.TransactionID))
		return existing, nil
	}

	charge, err := c.gateway.CreateCharge(ctx, r.Amount)
	if err != nil {
		c.metrics.IncrementCounter(metrics.GatewayErrors)
		c.logger.Error("Failed to create charge", logger.Err(err), logger.Field{Key: "amount", Value: r.Amount})
		return payment.Charge{}, fmt.Errorf("%w: %v", saga.ErrGatewayUnavailable, err)
	}

	if err := c.charges.Remember(ctx, fingerprint, charge); err != nil {
		c.logger.Warn("Failed to remember charge", logger.Err(err), logger.String("transaction_id", charge.TransactionID))
	}
	c.metrics.IncrementCounter(metrics.ChargesCreated)
	c.logger.Info("Charge created",
		logger.String("transaction_id", charge.TransactionID),
		logger.String("owner", r.Owner),
		logger.Field{Key: "amount", Value: r.Amount})

	c.publish(ctx, events.NewChargeCreated(events.ChargeCreatedData{
		TransactionID: charge.TransactionID,
		Owner:         r.Owner,
		Amount:        r.Amount,
		Fingerprint:   fingerprint,
		ExpiresAt:     charge.ExpiresAt,
	}, events.NewMetadata(charge.TransactionID, configs.ServiceNameCoordinator)))

	return charge, nil
}

// Confirm checks whether txID has been paid for r and, the first time it has, provisions r.
// NotYetPaid is a normal outcome, not an error. Calls for the same transaction are serialized and
// all observe the same terminal outcome.
func (c *Coordinator) Confirm(ctx context.Context, txID string, r provisioning.Reservation) (saga.Outcome, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return saga.Outcome{}, fmt.Errorf("%w: transaction id is required", saga.ErrInvalidRequest)
	}
	if err := r.Validate(); err != nil {
		return saga.Outcome{}, fmt.Errorf("%w: %v", saga.ErrInvalidRequest, err)
	}

	fingerprint := r.Fingerprint()
	if bound, ok, err := c.charges.Binding(ctx, txID); err != nil {
		c.logger.Warn("Charge registry binding lookup failed", logger.Err(err), logger.String("transaction_id", txID))
	} else if ok && bound != fingerprint {
		return saga.Outcome{}, fmt.Errorf("%w: reservation does not match transaction %s", saga.ErrInvalidRequest, txID)
	}

	if out, ok, err := c.lookupResolved(ctx, txID); err != nil || ok {
		return out, err
	}

	v, err, _ := c.flights.Do("confirm:"+txID+":"+fingerprint, func() (interface{}, error) {
		// Once payment matches, provisioning and the ledger write must finish even if this caller goes away.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.confirmTimeout)
		defer cancel()
		return c.confirmLocked(flightCtx, txID, r)
	})
	if err != nil {
		return saga.Outcome{}, err
	}
	return v.(saga.Outcome), nil
}

// lookupResolved returns a terminal outcome already known for txID.
func (c *Coordinator) lookupResolved(ctx context.Context, txID string) (saga.Outcome, bool, error) {
	c.resolvedMu.RLock()
	pending, ok := c.resolved[txID]
	c.resolvedMu.RUnlock()
	if ok {
		return c.retryLedgerWrite(ctx, pending), true, nil
	}

	rec, err := c.ledger.Get(ctx, txID)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		return saga.Outcome{}, false, nil
	}
	if err != nil {
		c.logger.Error("Ledger read failed", logger.Err(err), logger.String("transaction_id", txID))
		return saga.Outcome{}, false, fmt.Errorf("%w: %v", saga.ErrLedgerUnavailable, err)
	}

	c.metrics.IncrementCounter(metrics.ConfirmLedgerHits)
	return saga.OutcomeFromRecord(rec), true, nil
}

func (c *Coordinator) confirmLocked(ctx context.Context, txID string, r provisioning.Reservation) (saga.Outcome, error) {
	unlock, err := c.locker.Lock(ctx, txID)
	if err != nil {
		return saga.Outcome{}, fmt.Errorf("%w: lock %s: %v", saga.ErrLedgerUnavailable, txID, err)
	}
	defer unlock()

	// Another caller or replica may have finished while we waited for the lock.
	if out, ok, err := c.lookupResolved(ctx, txID); err != nil || ok {
		return out, err
	}

	settlement, err := c.gateway.QuerySettlement(ctx, c.merchant)
	if err != nil {
		c.metrics.IncrementCounter(metrics.GatewayErrors)
		c.logger.Warn("Settlement query failed", logger.Err(err), logger.String("transaction_id", txID))
		return saga.Outcome{}, fmt.Errorf("%w: %v", saga.ErrGatewayUnavailable, err)
	}
	if !settlement.Matches(r.Amount) {
		c.metrics.IncrementCounter(metrics.ConfirmNotYetPaid)
		return saga.NotYetPaid(txID), nil
	}

	// A settlement pays for one transaction only.
	owner, err := c.ledger.ClaimSettlement(ctx, settlement.Key(), txID)
	if err != nil {
		c.logger.Error("Settlement claim failed", logger.Err(err), logger.String("transaction_id", txID))
		return saga.Outcome{}, fmt.Errorf("%w: %v", saga.ErrLedgerUnavailable, err)
	}
	if owner != txID {
		c.metrics.IncrementCounter(metrics.SettlementsReclaimed)
		c.metrics.IncrementCounter(metrics.ConfirmNotYetPaid)
		c.logger.Warn("Settlement already redeemed by another transaction",
			logger.String("transaction_id", txID),
			logger.String("redeemed_by", owner))
		return saga.NotYetPaid(txID), nil
	}

	c.logger.Info("Payment matched, provisioning",
		logger.String("transaction_id", txID),
		logger.Field{Key: "amount", Value: r.Amount})

	now := c.now()
	var rec ledger.Record
	var outcome saga.Outcome
	creds, perr := c.provisioner.Provision(ctx, r)
	if perr != nil {
		reason := perr.Error()
		rec = ledger.NewProvisionFailedRecord(txID, r, reason, *settlement, now)
		outcome = saga.PaymentOkProvisionFailed(txID, reason, *settlement)
	} else {
		rec = ledger.NewSuccessRecord(txID, r, creds, *settlement, now)
		outcome = saga.Provisioned(txID, creds, *settlement)
	}

	stored, written, err := c.ledger.PutIfAbsent(ctx, rec)
	switch {
	case err != nil:
		c.rememberResolved(rec)
		c.metrics.IncrementCounter(metrics.LedgerWriteFailures)
		c.logger.Error("Ledger write failed after payment", logger.Err(err),
			logger.String("transaction_id", txID),
			logger.String("status", string(rec.Status)))
		c.raiseIncident(ctx, events.NewLedgerWriteFailed(events.LedgerWriteFailedData{
			TransactionID: txID,
			Status:        string(rec.Status),
			Amount:        r.Amount,
			Reason:        err.Error(),
			FailedAt:      now.UTC(),
		}, c.metadata(txID)), dlq.KindLedgerWriteFailed, err.Error(), map[string]interface{}{
			"owner":       r.Owner,
			"server_name": r.Name,
		})
	case !written:
		c.logger.Warn("Ledger already held a record, returning stored outcome", logger.String("transaction_id", txID))
		return saga.OutcomeFromRecord(stored), nil
	}

	c.announce(ctx, txID, r, outcome, now)
	return outcome, nil
}

// announce publishes the terminal outcome and routes provisioning failures to operators.
func (c *Coordinator) announce(ctx context.Context, txID string, r provisioning.Reservation, outcome saga.Outcome, now time.Time) {
	switch outcome.Kind {
	case saga.OutcomeProvisioned:
		c.metrics.IncrementCounter(metrics.ResourcesProvisioned)
		c.logger.Info("Resource provisioned",
			logger.String("transaction_id", txID),
			logger.String("server_id", outcome.Credentials.ServerID))
		c.publish(ctx, events.NewResourceProvisioned(events.ResourceProvisionedData{
			TransactionID: txID,
			Owner:         r.Owner,
			Amount:        r.Amount,
			ServerID:      outcome.Credentials.ServerID,
			ProvisionedAt: now.UTC(),
		}, c.metadata(txID)))

	case saga.OutcomePaymentOkProvisionFailed:
		c.metrics.IncrementCounter(metrics.ProvisionFailures)
		c.logger.Error("Provisioning failed after payment",
			logger.String("transaction_id", txID),
			logger.String("reason", outcome.Reason))
		ev := events.NewProvisionFailed(events.ProvisionFailedData{
			TransactionID: txID,
			Owner:         r.Owner,
			Amount:        r.Amount,
			Reason:        outcome.Reason,
			FailedAt:      now.UTC(),
		}, c.metadata(txID))
		c.publish(ctx, ev)
		c.raiseIncident(ctx, ev, dlq.KindProvisionFailed, outcome.Reason, map[string]interface{}{
			"owner":       r.Owner,
			"server_name": r.Name,
			"memory_mb":   r.MemoryMB,
			"disk_mb":     r.DiskMB,
			"cpu_percent": r.CPUPercent,
		})
	}
}

// Transaction returns the ledger record for txID, for operator lookups.
func (c *Coordinator) Transaction(ctx context.Context, txID string) (ledger.Record, error) {
	rec, err := c.ledger.Get(ctx, txID)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		return ledger.Record{}, err
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: %v", saga.ErrLedgerUnavailable, err)
	}
	return rec, nil
}

func (c *Coordinator) rememberResolved(rec ledger.Record) {
	c.resolvedMu.Lock()
	defer c.resolvedMu.Unlock()
	c.resolved[rec.TransactionID] = rec
}

// retryLedgerWrite writes a record the ledger refused earlier and forgets it once stored.
func (c *Coordinator) retryLedgerWrite(ctx context.Context, rec ledger.Record) saga.Outcome {
	stored, written, err := c.ledger.PutIfAbsent(ctx, rec)
	if err != nil {
		c.logger.Warn("Ledger still unavailable for resolved transaction", logger.Err(err),
			logger.String("transaction_id", rec.TransactionID))
		return saga.OutcomeFromRecord(rec)
	}

	c.resolvedMu.Lock()
	delete(c.resolved, rec.TransactionID)
	c.resolvedMu.Unlock()
	c.logger.Info("Resolved transaction written to ledger", logger.String("transaction_id", rec.TransactionID))

	if !written {
		return saga.OutcomeFromRecord(stored)
	}
	return saga.OutcomeFromRecord(rec)
}

func (c *Coordinator) pendingWrites() int {
	c.resolvedMu.RLock()
	defer c.resolvedMu.RUnlock()
	return len(c.resolved)
}

func (c *Coordinator) metadata(txID string) events.EventMetadata {
	return events.NewMetadata(txID, configs.ServiceNameCoordinator)
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, configs.TopicProvisioning, ev); err != nil {
		c.logger.Warn("Failed to publish event", logger.Err(err),
			logger.String("event_type", ev.Type()),
			logger.String("transaction_id", ev.AggregateID()))
	}
}

func (c *Coordinator) raiseIncident(ctx context.Context, ev events.Event, kind, reason string, details map[string]interface{}) {
	c.metrics.IncrementCounter(metrics.OperatorIncidents)
	if c.incidents == nil {
		return
	}
	if err := c.incidents.Publish(ctx, ev, kind, reason, details); err != nil {
		c.logger.Error("Failed to raise operator incident", logger.Err(err),
			logger.String("transaction_id", ev.AggregateID()),
			logger.String("kind", kind))
	}
}
