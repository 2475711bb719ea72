package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const scheduleKey = "courtline:schedule:v1"

// ScheduleCache holds the rendered schedule response in Redis for a few
// seconds. The horizon regenerates on every request otherwise; a short
// TTL bounds staleness while absorbing read bursts. All methods are
// no-ops on a nil cache so callers can run without Redis.
type ScheduleCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewScheduleCache(rdb *redis.Client, ttl time.Duration) *ScheduleCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &ScheduleCache{rdb: rdb, ttl: ttl}
}

func (c *ScheduleCache) Get(ctx context.Context) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	body, err := c.rdb.Get(ctx, scheduleKey).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

func (c *ScheduleCache) Set(ctx context.Context, body []byte) {
	if c == nil || c.rdb == nil || len(body) == 0 {
		return
	}
	_ = c.rdb.Set(ctx, scheduleKey, body, c.ttl).Err()
}

// Invalidate drops the cached view after a successful write so the next
// read reflects the change immediately instead of waiting out the TTL.
func (c *ScheduleCache) Invalidate(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, scheduleKey).Err()
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
