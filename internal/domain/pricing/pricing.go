// Package pricing turns a resource configuration into the exact amount a user has to pay.
//
// Settlements are matched to reservations by amount alone, so the final amount carries two random
// low-order digits in [10,99]. Two reservations with the same base price almost always end up with
// different payable amounts.
package pricing

import (
	"errors"
	"fmt"
	"math/rand"

	"provision-saga/internal/domain/provisioning"
)

var (
	ErrUnknownTier    = errors.New("unknown tier")
	ErrAmountMismatch = errors.New("amount does not match the price of the configuration")
)

const (
	suffixMin = 10
	suffixMax = 99
)

// Engine prices configurations against a validated Scheme.
type Engine struct {
	scheme Scheme
	intn   func(n int) int
}

// Option customises an Engine.
type Option func(*Engine)

// WithRandom replaces the random source used by Disambiguate. intn must return a value in [0,n).
func WithRandom(intn func(n int) int) Option {
	return func(e *Engine) { e.intn = intn }
}

func NewEngine(s Scheme, opts ...Option) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{scheme: s, intn: rand.Intn}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Scheme() Scheme {
	return e.scheme
}

// Price sums the independently priced memory, disk and cpu dimensions.
func (e *Engine) Price(cfg provisioning.ResourceConfig) (int64, error) {
	mem, ok := e.scheme.Memory.price(cfg.MemoryMB)
	if !ok {
		return 0, fmt.Errorf("%w: memory %d MB", ErrUnknownTier, cfg.MemoryMB)
	}
	disk, ok := e.scheme.Disk.price(cfg.DiskMB)
	if !ok {
		return 0, fmt.Errorf("%w: disk %d MB", ErrUnknownTier, cfg.DiskMB)
	}
	cpu, ok := e.scheme.CPU.price(cfg.CPUPercent)
	if !ok {
		return 0, fmt.Errorf("%w: cpu %d%%", ErrUnknownTier, cfg.CPUPercent)
	}
	return mem + disk + cpu, nil
}

// Disambiguate adds the fixed fee, drops the two low-order digits and replaces them with a random
// suffix in [10,99]. The result is never below the fixed fee.
func (e *Engine) Disambiguate(total int64) int64 {
	return e.base(total) + int64(suffixMin+e.intn(suffixMax-suffixMin+1))
}

func (e *Engine) base(total int64) int64 {
	fee := e.scheme.FixedFee
	base := (total + fee) / 100 * 100
	if total+fee < fee || base < fee {
		base = (fee + 99) / 100 * 100
	}
	return base
}

// Quote prices cfg and returns the reservation the user is asked to pay for.
func (e *Engine) Quote(cfg provisioning.ResourceConfig) (provisioning.Reservation, int64, error) {
	price, err := e.Price(cfg)
	if err != nil {
		return provisioning.Reservation{}, 0, err
	}
	return provisioning.NewReservation(cfg, e.Disambiguate(price)), price, nil
}

// Verify checks that r.Amount is a value Quote could have produced for r's configuration.
func (e *Engine) Verify(r provisioning.Reservation) error {
	price, err := e.Price(r.ResourceConfig)
	if err != nil {
		return err
	}
	suffix := r.Amount % 100
	if suffix < suffixMin || suffix > suffixMax || r.Amount-suffix != e.base(price) {
		return fmt.Errorf("%w: got %d for base %d", ErrAmountMismatch, r.Amount, e.base(price))
	}
	return nil
}
