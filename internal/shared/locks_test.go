package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*PeriodLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPeriodLocker(client, time.Minute), mr
}

func TestPeriodLockerMutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = locker.Acquire(ctx, 42)
	require.NoError(t, err)
	require.False(t, acquired)

	// A different period is an independent lock.
	acquired, err = locker.Acquire(ctx, 43)
	require.NoError(t, err)
	require.True(t, acquired)

	locker.Release(ctx, 42)
	acquired, err = locker.Acquire(ctx, 42)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestPeriodLockerTTLExpiry(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)
	require.True(t, acquired)

	// A crashed holder never releases; the TTL frees the lock.
	mr.FastForward(2 * time.Minute)

	acquired, err = locker.Acquire(ctx, 42)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestPeriodLockerNilClient(t *testing.T) {
	locker := NewPeriodLocker(nil, time.Minute)
	acquired, err := locker.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, acquired)
	locker.Release(context.Background(), 1)
}
