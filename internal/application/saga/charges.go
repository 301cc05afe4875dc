package saga

import (
	"context"
	"sync"
	"time"

	"provision-saga/internal/domain/payment"
)

// ChargeRegistry remembers the live charge for each reservation fingerprint and which fingerprint
// a transaction was issued for.
type ChargeRegistry interface {
	Lookup(ctx context.Context, fingerprint string) (payment.Charge, bool, error)
	Remember(ctx context.Context, fingerprint string, c payment.Charge) error
	Binding(ctx context.Context, txID string) (string, bool, error)
}

type registryEntry struct {
	charge      payment.Charge
	fingerprint string
	expiresAt   time.Time
}

// MemoryChargeRegistry is the single-process ChargeRegistry.
type MemoryChargeRegistry struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	now        func() time.Time
	byPrint    map[string]registryEntry
	byTx       map[string]registryEntry
}

func NewMemoryChargeRegistry(defaultTTL time.Duration) *MemoryChargeRegistry {
	return &MemoryChargeRegistry{
		defaultTTL: defaultTTL,
		now:        time.Now,
		byPrint:    make(map[string]registryEntry),
		byTx:       make(map[string]registryEntry),
	}
}

func (r *MemoryChargeRegistry) Lookup(_ context.Context, fingerprint string) (payment.Charge, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byPrint[fingerprint]
	if !ok {
		return payment.Charge{}, false, nil
	}
	if r.now().After(e.expiresAt) {
		delete(r.byPrint, fingerprint)
		return payment.Charge{}, false, nil
	}
	return e.charge, true, nil
}

func (r *MemoryChargeRegistry) Remember(_ context.Context, fingerprint string, c payment.Charge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expires := c.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(r.defaultTTL)
	}
	if !expires.After(now) {
		return nil
	}
	r.sweep(now)

	e := registryEntry{charge: c, fingerprint: fingerprint, expiresAt: expires}
	r.byPrint[fingerprint] = e
	r.byTx[c.TransactionID] = e
	return nil
}

func (r *MemoryChargeRegistry) Binding(_ context.Context, txID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byTx[txID]
	if !ok || r.now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.fingerprint, true, nil
}

// sweep drops expired entries. Caller holds mu.
func (r *MemoryChargeRegistry) sweep(now time.Time) {
	for k, e := range r.byPrint {
		if now.After(e.expiresAt) {
			delete(r.byPrint, k)
		}
	}
	for k, e := range r.byTx {
		if now.After(e.expiresAt) {
			delete(r.byTx, k)
		}
	}
}
