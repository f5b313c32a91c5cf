package xkv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore 在 fail 为 true 时所有操作返回 errBackend。
type flakyStore struct {
	Store
	fail  bool
	calls int
}

var errBackend = errors.New("backend down")

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.fail {
		return nil, errBackend
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.calls++
	if f.fail {
		return errBackend
	}
	return f.Store.Put(ctx, key, value, ttl)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: NewMemory(), fail: true}
	b := WithBreaker(flaky, "kv", WithTripAfter(3), WithOpenTimeout(time.Hour))

	for range 3 {
		_, err := b.Get(ctx, "k")
		assert.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, flaky.calls)
}

func TestBreaker_NotFoundIsSuccess(t *testing.T) {
	ctx := context.Background()
	b := WithBreaker(NewMemory(), "kv", WithTripAfter(1))

	for range 5 {
		_, err := b.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_CallerDeadlineIsNotFailure(t *testing.T) {
	flaky := &flakyStore{Store: NewMemory(), fail: true}
	b := WithBreaker(flaky, "kv", WithTripAfter(2), WithOpenTimeout(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	for range 5 {
		_, err := b.Get(ctx, "k")
		assert.ErrorIs(t, err, errBackend)
		var cd *callerDone
		assert.False(t, errors.As(err, &cd))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 5, flaky.calls)

	// store 自身超时仍计入失败
	for range 2 {
		_, err := b.Get(context.Background(), "k")
		assert.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_DeadlineErrorFromStoreCounts(t *testing.T) {
	flaky := &deadlineStore{Store: NewMemory()}
	b := WithBreaker(flaky, "kv", WithTripAfter(2), WithOpenTimeout(time.Hour))

	for range 2 {
		_, err := b.Get(context.Background(), "k")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

// deadlineStore 模拟 store 内部超时，调用方 ctx 仍有效。
type deadlineStore struct {
	Store
}

func (d *deadlineStore) Get(context.Context, string) ([]byte, error) {
	return nil, context.DeadlineExceeded
}

func TestBreaker_PassThrough(t *testing.T) {
	ctx := context.Background()
	var changes []gobreaker.State
	b := WithBreaker(NewMemory(), "kv", WithStateChange(func(_ string, _, to gobreaker.State) {
		changes = append(changes, to)
	}))

	require.NoError(t, b.Put(ctx, "a:1", []byte("v"), 0))
	v, err := b.Get(ctx, "a:1")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	keys, err := b.List(ctx, "a:")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1"}, keys)

	require.NoError(t, b.Delete(ctx, "a:1"))
	assert.Empty(t, changes)
}
