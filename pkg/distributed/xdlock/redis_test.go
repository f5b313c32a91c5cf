package xdlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T, opts ...Option) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedis([]redis.UniversalClient{client}, opts...)
	require.NoError(t, err)
	return l, mr
}

func TestNewRedis_NilClient(t *testing.T) {
	_, err := NewRedis(nil)
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = NewRedis([]redis.UniversalClient{nil})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestLockUnlock(t *testing.T) {
	ctx := context.Background()
	l, mr := newLocker(t)

	h, err := l.Lock(ctx, "api:user:1")
	require.NoError(t, err)
	assert.Equal(t, "lock:api:user:1", h.Key())
	assert.True(t, mr.Exists("lock:api:user:1"))

	require.NoError(t, h.Unlock(ctx))
	assert.False(t, mr.Exists("lock:api:user:1"))
	assert.ErrorIs(t, h.Unlock(ctx), ErrNotLocked)
}

func TestLock_EmptyKey(t *testing.T) {
	l, _ := newLocker(t)
	_, err := l.Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestLock_HeldExhaustsTries(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocker(t, WithTries(2), WithRetryDelay(time.Millisecond), WithExpiry(time.Minute))

	h, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	defer func() { _ = h.Unlock(ctx) }()

	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestLock_ContextCanceled(t *testing.T) {
	l, _ := newLocker(t, WithTries(1000), WithRetryDelay(5*time.Millisecond), WithExpiry(time.Minute))

	h, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer func() { _ = h.Unlock(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLock_ServerDown(t *testing.T) {
	l, mr := newLocker(t, WithTries(1))
	mr.Close()

	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
}
