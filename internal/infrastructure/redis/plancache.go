package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/genovahq/insurance/internal/genova"
	"github.com/redis/go-redis/v9"
)

const planCacheKey = "insurance:plans"

// PlanCache caches the remote plan list so checkout pages don't hit the
// provider on every render. Misses and Redis failures both fall through to
// the live API; the cache is best-effort only.
type PlanCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPlanCache(client *redis.Client, ttl time.Duration) *PlanCache {
	return &PlanCache{client: client, ttl: ttl}
}

// Get returns the cached plan list, or (nil, false) on miss or error.
func (c *PlanCache) Get(ctx context.Context) ([]genova.Plan, bool) {
	raw, err := c.client.Get(ctx, planCacheKey).Bytes()
	if err != nil {
		return nil, false
	}

	var plans []genova.Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, false
	}
	return plans, true
}

// Set stores the plan list for the configured TTL.
func (c *PlanCache) Set(ctx context.Context, plans []genova.Plan) error {
	raw, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("marshal plans: %w", err)
	}
	if err := c.client.Set(ctx, planCacheKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache plans: %w", err)
	}
	return nil
}

// Invalidate drops the cached plan list.
func (c *PlanCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, planCacheKey).Err()
}
