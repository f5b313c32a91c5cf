package xkv

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Put(ctx, "k", []byte("v"), 0))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemory(WithMemoryClock(func() time.Time { return now }))

	require.NoError(t, m.Put(ctx, "k", []byte("v"), time.Second))
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_List(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"refresh:1:a", "refresh:1:b", "refresh:10:c", "ratelimit:x"} {
		require.NoError(t, m.Put(ctx, k, nil, 0))
	}

	keys, err := m.List(ctx, "refresh:1:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"refresh:1:a", "refresh:1:b"}, keys)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMemory_Validation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.ErrorIs(t, m.Put(ctx, "", nil, 0), ErrEmptyKey)
	assert.ErrorIs(t, m.Put(ctx, "k", nil, -time.Second), ErrNegativeTTL)
	_, err := m.Get(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Get(canceled, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestMemory_Close(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Close())

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Put(ctx, "k", nil, 0), ErrClosed)
}
