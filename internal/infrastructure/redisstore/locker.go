// Package redisstore holds the Redis-backed coordination state shared by coordinator replicas:
// per-transaction locks and the live charge registry.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "saga:lock:"

var ErrLockTimeout = errors.New("timed out waiting for transaction lock")

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockClient is the minimal client surface used by Locker.
type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// Locker is a SET NX PX lock keyed by transaction ID. The TTL bounds how long a crashed holder
// blocks other replicas; it must exceed the longest confirm (settlement query plus provisioning).
type Locker struct {
	client LockClient
	ttl    time.Duration
	retry  time.Duration
}

func NewLocker(client LockClient, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock blocks until the lock for key is held or ctx is done. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	redisKey := lockPrefix + key

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Released on a fresh context so a cancelled caller still frees the lock.
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				releaseScript.Run(rctx, l.client, []string{redisKey}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}
