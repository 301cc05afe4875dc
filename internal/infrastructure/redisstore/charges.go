package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"provision-saga/internal/domain/payment"
)

const (
	chargePrefix  = "saga:charge:"
	bindingPrefix = "saga:binding:"
)

// KVClient is the minimal client surface used by ChargeRegistry.
type KVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ChargeRegistry remembers the live charge per reservation fingerprint, and which fingerprint each
// transaction was created for. Entries expire with the charge.
type ChargeRegistry struct {
	client     KVClient
	defaultTTL time.Duration
	now        func() time.Time
}

func NewChargeRegistry(client KVClient, defaultTTL time.Duration) *ChargeRegistry {
	return &ChargeRegistry{client: client, defaultTTL: defaultTTL, now: time.Now}
}

func (r *ChargeRegistry) Lookup(ctx context.Context, fingerprint string) (payment.Charge, bool, error) {
	raw, err := r.client.Get(ctx, chargePrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return payment.Charge{}, false, nil
	}
	if err != nil {
		return payment.Charge{}, false, fmt.Errorf("lookup charge: %w", err)
	}

	var c payment.Charge
	if err := json.Unmarshal(raw, &c); err != nil {
		return payment.Charge{}, false, fmt.Errorf("decode charge: %w", err)
	}
	if c.Expired(r.now()) {
		return payment.Charge{}, false, nil
	}
	return c, true, nil
}

func (r *ChargeRegistry) Remember(ctx context.Context, fingerprint string, c payment.Charge) error {
	ttl := r.defaultTTL
	if !c.ExpiresAt.IsZero() {
		ttl = c.ExpiresAt.Sub(r.now())
	}
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode charge: %w", err)
	}
	if err := r.client.Set(ctx, chargePrefix+fingerprint, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store charge: %w", err)
	}
	if err := r.client.Set(ctx, bindingPrefix+c.TransactionID, fingerprint, ttl).Err(); err != nil {
		return fmt.Errorf("store binding: %w", err)
	}
	return nil
}

func (r *ChargeRegistry) Binding(ctx context.Context, txID string) (string, bool, error) {
	fp, err := r.client.Get(ctx, bindingPrefix+txID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup binding: %w", err)
	}
	return fp, true, nil
}
