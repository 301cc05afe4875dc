package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"provision-saga/internal/domain/payment"
)

// Simulator is an in-process gateway. Charges are recorded; a settlement appears only when Pay is
// called, mirroring a user scanning the QR.
type Simulator struct {
	mu         sync.Mutex
	ttl        time.Duration
	latency    time.Duration
	now        func() time.Time
	charges    map[string]payment.Charge
	settlement *payment.Settlement
	failNext   error
	creates    int
	queries    int
}

func NewSimulator(ttl time.Duration) *Simulator {
	return &Simulator{
		ttl:     ttl,
		now:     time.Now,
		charges: make(map[string]payment.Charge),
	}
}

// SetLatency delays every call, honouring context cancellation.
func (s *Simulator) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// FailNext makes the next call return err wrapped in ErrUnavailable.
func (s *Simulator) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Simulator) CreateCharge(ctx context.Context, amount int64) (payment.Charge, error) {
	if amount <= 0 {
		return payment.Charge{}, ErrInvalidAmount
	}
	if err := s.begin(ctx); err != nil {
		return payment.Charge{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++

	txID := "SIM" + uuid.New().String()[:8]
	charge := payment.Charge{
		TransactionID: txID,
		QRPayload:     fmt.Sprintf("sim://qris/%s?amount=%d", txID, amount),
		Amount:        amount,
	}
	if s.ttl > 0 {
		charge.ExpiresAt = s.now().Add(s.ttl).UTC()
	}
	s.charges[txID] = charge
	return charge, nil
}

func (s *Simulator) QuerySettlement(ctx context.Context, _ Merchant) (*payment.Settlement, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.settlement == nil {
		return nil, nil
	}
	cp := *s.settlement
	return &cp, nil
}

// Pay records a credit of amount as the latest merchant mutation.
func (s *Simulator) Pay(amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlement = &payment.Settlement{
		AmountPaid:      amount,
		SettledAt:       s.now().UTC(),
		Direction:       payment.DirectionCredit,
		CounterpartyRef: "SIM-BUYER",
		Issuer:          "SIM",
	}
}

// PayCharge pays the exact amount of a charge previously created by the simulator.
func (s *Simulator) PayCharge(txID string) error {
	s.mu.Lock()
	charge, ok := s.charges[txID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown charge %s", txID)
	}
	s.Pay(charge.Amount)
	return nil
}

// Calls returns how many charge and settlement calls reached the simulator.
func (s *Simulator) Calls() (creates, queries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.queries
}

func (s *Simulator) begin(ctx context.Context) error {
	s.mu.Lock()
	latency := s.latency
	failure := s.failNext
	s.failNext = nil
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(latency):
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
	if failure != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, failure)
	}
	return nil
}
