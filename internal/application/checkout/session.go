package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"provision-saga/internal/common/configs"
	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/payment"
	"provision-saga/internal/domain/provisioning"
	"provision-saga/internal/domain/saga"
)

// User-facing messages.
const (
	MsgNotYetPaid      = "Payment has not been received yet. Complete the QR payment and check again."
	MsgProvisionFailed = "Payment was received but the server could not be created. Contact an operator with your transaction ID."
	MsgSessionLost     = "Your pending payment could not be recovered. Please start a new order."
	MsgChargeExpired   = "The payment QR expired before payment was received. Please create a new order."
	MsgProvisioned     = "Payment confirmed. Your server is ready."
)

// Backend is the coordinator surface the client drives, in process or over HTTP.
type Backend interface {
	Initiate(ctx context.Context, r provisioning.Reservation) (payment.Charge, error)
	Confirm(ctx context.Context, txID string, r provisioning.Reservation) (saga.Outcome, error)
}

// State is a copy of the session's current view.
type State struct {
	Step        saga.Step
	Reservation *provisioning.Reservation
	Charge      *payment.Charge
	// Credentials is set once, on the confirm that provisioned the server.
	Credentials *provisioning.Credentials
	// TransactionID of the last charge, kept after the session ends for operator reference.
	TransactionID string
	Message       string
	Err           error
}

// Waiting reports whether the session is still waiting on payment.
func (s State) Waiting() bool {
	return s.Step == saga.StepProcessingPayment || s.Step == saga.StepShowQr
}

type Option func(*Session)

func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Session) { s.log = log }
}

// Session is the client side of the payment saga. All methods are safe for concurrent use.
type Session struct {
	backend  Backend
	store    SessionStore
	url      URLState
	log      logger.Logger
	now      func() time.Time
	interval time.Duration

	mu      sync.Mutex
	state   State
	gen     uint64
	poll    *poller
	changed chan struct{}
	closed  bool
}

func NewSession(backend Backend, store SessionStore, url URLState, opts ...Option) *Session {
	s := &Session{
		backend:  backend,
		store:    store,
		url:      url,
		log:      logger.NewNopLogger(),
		now:      time.Now,
		interval: configs.DefaultPollInterval,
		state:    State{Step: saga.StepFormInput},
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the session stops waiting on payment or ctx ends.
func (s *Session) Wait(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		st, ch := s.state, s.changed
		s.mu.Unlock()

		if !st.Waiting() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ch:
		}
	}
}

// Submit persists r and asks the backend for a charge. r must be a priced reservation.
func (s *Session) Submit(ctx context.Context, r provisioning.Reservation) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", saga.ErrInvalidRequest, err)
	}

	s.mu.Lock()
	if err := s.moveLocked(saga.StepProcessingPayment); err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	gen := s.gen
	s.state = State{Step: saga.StepProcessingPayment, Reservation: &r}

	// The reservation is stored before any charge exists, so a reload mid-request still knows what was ordered.
	snap := NewSnapshot(r)
	if err := s.saveLocked(snap); err != nil {
		s.failLocked(fmt.Errorf("persist reservation: %w", err), err.Error())
		s.mu.Unlock()
		return err
	}
	s.notifyLocked()
	s.mu.Unlock()

	charge, err := s.backend.Initiate(ctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state.Step != saga.StepProcessingPayment {
		// Cancelled while the request was in flight.
		return nil
	}
	if err != nil {
		s.log.Warn("initiate failed", logger.Err(err))
		s.clearLocked()
		s.failLocked(err, err.Error())
		return err
	}

	if err := s.saveLocked(snap.WithCharge(charge)); err != nil {
		s.log.Warn("failed to persist charge", logger.String("transaction_id", charge.TransactionID), logger.Err(err))
	}
	if err := s.writeURLLocked(charge); err != nil {
		s.log.Warn("failed to write url state", logger.String("transaction_id", charge.TransactionID), logger.Err(err))
	}
	s.enterShowQrLocked(r, charge)
	return nil
}

// CheckNow runs one confirm for the displayed charge. Backend errors are returned and shown as the message
// but leave the session on the QR.
func (s *Session) CheckNow(ctx context.Context) (saga.Outcome, error) {
	s.mu.Lock()
	if s.state.Step != saga.StepShowQr {
		step := s.state.Step
		s.mu.Unlock()
		return saga.Outcome{}, fmt.Errorf("%w: no charge to check in %s", saga.ErrInvalidTransition, step)
	}
	gen, txID, r := s.gen, s.state.Charge.TransactionID, *s.state.Reservation
	s.mu.Unlock()

	out, err := s.backend.Confirm(ctx, txID, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return out, err
	}
	if err != nil {
		s.state.Message, s.state.Err = err.Error(), err
		s.notifyLocked()
		return out, err
	}
	s.applyLocked(out, true, false)
	return out, nil
}

// Cancel abandons the pending charge. The gateway charge is left to expire.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txID := s.state.TransactionID
	if err := s.moveLocked(saga.StepFormInput); err != nil {
		return err
	}
	s.clearLocked()
	s.state = State{Step: saga.StepFormInput, TransactionID: txID}
	s.notifyLocked()
	return nil
}

// Acknowledge dismisses a failure and returns to the form.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Step != saga.StepPaymentFailed {
		return fmt.Errorf("%w: acknowledge in %s", saga.ErrInvalidTransition, s.state.Step)
	}
	s.state = State{Step: saga.StepFormInput, TransactionID: s.state.TransactionID}
	s.notifyLocked()
	return nil
}

// Restore rebuilds the session after a reload. A charge in the URL without a matching stored reservation
// fails with ErrSessionRecovery and wipes both.
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Step != saga.StepFormInput {
		return fmt.Errorf("%w: restore in %s", saga.ErrInvalidTransition, s.state.Step)
	}

	q, err := s.url.Query()
	if err != nil {
		return fmt.Errorf("read url state: %w", err)
	}
	charge, ok := ChargeFromQuery(q)
	if !ok {
		// Leftover from a submit that never got a charge.
		if err := s.store.Clear(); err != nil {
			s.log.Warn("failed to clear stale session", logger.Err(err))
		}
		return nil
	}

	snap, err := s.loadLocked()
	if err == nil && snap.TransactionID != "" && snap.TransactionID != charge.TransactionID {
		err = fmt.Errorf("stored transaction %s does not match %s", snap.TransactionID, charge.TransactionID)
	}
	if err != nil {
		s.log.Warn("session recovery failed",
			logger.String("transaction_id", charge.TransactionID),
			logger.Err(err),
		)
		s.clearLocked()
		recoveryErr := fmt.Errorf("%w: %v", saga.ErrSessionRecovery, err)
		s.state = State{Step: saga.StepFormInput, TransactionID: charge.TransactionID, Message: MsgSessionLost, Err: recoveryErr}
		s.notifyLocked()
		return recoveryErr
	}

	charge.Amount = snap.Reservation.Amount
	if charge.QRPayload == "" {
		charge.QRPayload = snap.QRPayload
	}
	if charge.ExpiresAt.IsZero() {
		charge.ExpiresAt = snap.ExpiresAt
	}
	if err := s.saveLocked(snap.WithCharge(charge)); err != nil {
		s.log.Warn("failed to persist restored charge", logger.String("transaction_id", charge.TransactionID), logger.Err(err))
	}

	if err := s.moveLocked(saga.StepShowQr); err != nil {
		return err
	}
	s.log.Info("session restored", logger.String("transaction_id", charge.TransactionID))
	s.enterShowQrLocked(snap.Reservation, charge)
	return nil
}

// Close stops the poller and waits for it. Stored state is kept so the session can be restored later.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	p := s.poll
	s.poll = nil
	s.gen++
	s.mu.Unlock()

	if p != nil {
		p.stop()
		<-p.done
	}
}

func (s *Session) enterShowQrLocked(r provisioning.Reservation, c payment.Charge) {
	s.stopPollerLocked()
	s.gen++
	s.state = State{Step: saga.StepShowQr, Reservation: &r, Charge: &c, TransactionID: c.TransactionID}
	if !s.closed {
		s.poll = startPoller(s, s.gen, s.interval)
	}
	s.notifyLocked()
}

// applyLocked moves the session according to a confirm outcome. manual marks a user-requested check,
// final the confirm run when the charge expired.
func (s *Session) applyLocked(out saga.Outcome, manual, final bool) {
	switch out.Kind {
	case saga.OutcomeProvisioned:
		s.log.Info("server provisioned", logger.String("transaction_id", out.TransactionID))
		s.clearLocked()
		s.state = State{
			Step:          saga.StepFormInput,
			Credentials:   out.Credentials,
			TransactionID: out.TransactionID,
			Message:       MsgProvisioned,
		}
		s.notifyLocked()
	case saga.OutcomePaymentOkProvisionFailed:
		s.log.Error("payment received but provisioning failed",
			logger.String("transaction_id", out.TransactionID),
			logger.String("reason", out.Reason),
		)
		s.clearLocked()
		s.failLocked(errors.New(out.Reason), MsgProvisionFailed)
	default:
		if final || (s.state.Charge != nil && s.state.Charge.Expired(s.now())) {
			s.log.Info("charge expired unpaid", logger.String("transaction_id", s.state.TransactionID))
			s.clearLocked()
			s.failLocked(saga.ErrChargeExpired, MsgChargeExpired)
			return
		}
		if manual {
			s.state.Message, s.state.Err = MsgNotYetPaid, nil
			s.notifyLocked()
		}
	}
}

// pollOnce runs one confirm for the poller. Results for an older generation are dropped.
func (s *Session) pollOnce(ctx context.Context, gen uint64, final bool) {
	s.mu.Lock()
	if s.gen != gen || s.state.Step != saga.StepShowQr {
		s.mu.Unlock()
		return
	}
	txID, r := s.state.Charge.TransactionID, *s.state.Reservation
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	out, err := s.backend.Confirm(ctx, txID, r)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state.Step != saga.StepShowQr {
		return
	}
	if err != nil {
		s.log.Warn("status poll failed", logger.String("transaction_id", txID), logger.Err(err))
		return
	}
	s.applyLocked(out, false, final)
}

func (s *Session) moveLocked(target saga.Step) error {
	next, err := s.state.Step.Transition(target)
	if err != nil {
		return err
	}
	if next != saga.StepShowQr {
		s.stopPollerLocked()
	}
	s.state.Step = next
	return nil
}

// failLocked lands in PaymentFailed. Every caller comes from ProcessingPayment or ShowQr.
func (s *Session) failLocked(err error, msg string) {
	s.stopPollerLocked()
	s.gen++
	s.state = State{
		Step:          saga.StepPaymentFailed,
		Reservation:   s.state.Reservation,
		TransactionID: s.state.TransactionID,
		Message:       msg,
		Err:           err,
	}
	s.notifyLocked()
}

// clearLocked drops the stored reservation and the charge fields from the URL.
func (s *Session) clearLocked() {
	s.stopPollerLocked()
	s.gen++
	if err := s.store.Clear(); err != nil {
		s.log.Warn("failed to clear session storage", logger.Err(err))
	}
	q, err := s.url.Query()
	if err != nil {
		s.log.Warn("failed to read url state", logger.Err(err))
		return
	}
	if err := s.url.Replace(StripChargeQuery(q)); err != nil {
		s.log.Warn("failed to strip url state", logger.Err(err))
	}
}

// stopPollerLocked signals the poller without waiting; it may be blocked on s.mu.
func (s *Session) stopPollerLocked() {
	if s.poll != nil {
		s.poll.stop()
		s.poll = nil
	}
}

func (s *Session) saveLocked(snap Snapshot) error {
	token, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return s.store.Save(token)
}

func (s *Session) loadLocked() (Snapshot, error) {
	token, err := s.store.Load()
	if err != nil {
		return Snapshot{}, err
	}
	return DecodeSnapshot(token)
}

func (s *Session) writeURLLocked(c payment.Charge) error {
	q, err := s.url.Query()
	if err != nil {
		return err
	}
	return s.url.Replace(ChargeQuery(q, c))
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
