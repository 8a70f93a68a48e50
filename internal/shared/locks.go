package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PeriodCloseLockKey builds the redis key guarding a period close run.
func PeriodCloseLockKey(periodID int64) string {
	return fmt.Sprintf("periods:close:%d:lock", periodID)
}

// PeriodLocker provides cross-instance advisory locks for period
// transitions. The database row lock remains the correctness backstop;
// this only lets a second close attempt fail fast instead of blocking.
type PeriodLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPeriodLocker constructs the locker. A nil client disables locking,
// which is acceptable for single-instance deployments and tests.
func NewPeriodLocker(client *redis.Client, ttl time.Duration) *PeriodLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PeriodLocker{client: client, ttl: ttl}
}

// Acquire claims the close lock for a period. It reports false when another
// holder already owns it.
func (l *PeriodLocker) Acquire(ctx context.Context, periodID int64) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, PeriodCloseLockKey(periodID), 1, l.ttl).Result()
}

// Release drops the close lock. Releasing an expired or missing lock is a no-op.
func (l *PeriodLocker) Release(ctx context.Context, periodID int64) {
	if l == nil || l.client == nil {
		return
	}
	_ = l.client.Del(ctx, PeriodCloseLockKey(periodID)).Err()
}
