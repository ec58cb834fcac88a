package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
)

func TestMutex_LockUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("dataset:v1", WithLockTTL(time.Second))

	require.NoError(t, lock.Lock(ctx))

	exists, err := client.Exists(ctx, "spanmark:lock:dataset:v1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	require.NoError(t, lock.Unlock(ctx))

	exists, err = client.Exists(ctx, "spanmark:lock:dataset:v1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestMutex_Contention(t *testing.T) {
	client, _ := newTestClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock1 := factory.NewMutex("dataset:v1", WithRetryCount(1), WithRetryDelay(5*time.Millisecond))
	lock2 := factory.NewMutex("dataset:v1", WithRetryCount(1), WithRetryDelay(5*time.Millisecond))

	require.NoError(t, lock1.Lock(ctx))

	err := lock2.Lock(ctx)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	ok, err := lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock1.Unlock(ctx))
	require.NoError(t, lock2.Lock(ctx))
}

func TestMutex_UnlockByNonHolder(t *testing.T) {
	client, _ := newTestClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	holder := factory.NewMutex("dataset:v1")
	intruder := factory.NewMutex("dataset:v1")

	require.NoError(t, holder.Lock(ctx))

	// The intruder carries a different owner token, so the unlock script
	// must refuse and leave the lock in place.
	assert.ErrorIs(t, intruder.Unlock(ctx), ErrLockNotHeld)

	exists, err := client.Exists(ctx, "spanmark:lock:dataset:v1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	require.NoError(t, holder.Unlock(ctx))
}

func TestMutex_ExtendAndTTL(t *testing.T) {
	client, _ := newTestClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("dataset:v1", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Second)

	// A non-holder cannot extend.
	other := factory.NewMutex("dataset:v1")
	ok, err = other.Extend(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMutex_WatchdogKeepsLockAlive(t *testing.T) {
	client, mr := newTestClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("dataset:v1",
		WithLockTTL(200*time.Millisecond),
		WithWatchdog(true),
		WithWatchdogInterval(20*time.Millisecond),
	)
	require.NoError(t, lock.Lock(ctx))

	// Burn most of the TTL on the server clock, let the watchdog refresh it,
	// then burn past where the original TTL would have expired.
	mr.FastForward(150 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	mr.FastForward(150 * time.Millisecond)

	exists, err := client.Exists(ctx, "spanmark:lock:dataset:v1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	require.NoError(t, lock.Unlock(ctx))
}

func TestNopLockFactory(t *testing.T) {
	lock := NewNopLockFactory().NewMutex("anything")
	ctx := context.Background()

	require.NoError(t, lock.Lock(ctx))
	ok, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, lock.Unlock(ctx))
}
