package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua script for safe lock release (only owner can release)
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// OrderLock serializes purchase processing per order across workers. The
// engine's policy-id check is the correctness guard; the lock only avoids
// wasted duplicate HTTP calls when a retry and a manual re-enqueue race.
type OrderLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

// NewOrderLock creates a lock for one order.
func NewOrderLock(client *redis.Client, orderID string, ttl time.Duration) *OrderLock {
	return &OrderLock{
		client: client,
		key:    fmt.Sprintf("lock:insurance:order:%s", orderID),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock without blocking.
func (l *OrderLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	l.acquired = ok
	return ok, nil
}

// Release releases the lock if this instance still owns it.
func (l *OrderLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	if val, ok := result.(int64); !ok || val == 0 {
		return errors.New("lock not held or already released")
	}

	l.acquired = false
	return nil
}
