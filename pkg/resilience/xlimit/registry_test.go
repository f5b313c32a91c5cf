package xlimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/distributed/xdlock"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/storage/xkv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock 毫秒级可控时钟。
type fakeClock struct {
	ms atomic.Int64
}

func (c *fakeClock) Now() time.Time {
	return time.UnixMilli(c.ms.Load())
}

func (c *fakeClock) Set(ms int64) {
	c.ms.Store(ms)
}

// brokenStore 按开关返回错误，其余委托给内存实现。
type brokenStore struct {
	*xkv.Memory
	getErr error
	putErr error
	puts   atomic.Int32
}

func (s *brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Memory.Get(ctx, key)
}

func (s *brokenStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.puts.Add(1)
	if s.putErr != nil {
		return s.putErr
	}
	return s.Memory.Put(ctx, key, value, ttl)
}

var apiCfg = Config{MillisecondsPerRequest: 100, GracePeriodMs: 50}

func newRegistry(t *testing.T, store xkv.Store, opts ...Option) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	r, err := NewRegistry(store, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, clock
}

func TestNewRegistry_NilStore(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestRegistry_WorkedExamplePersists(t *testing.T) {
	ctx := context.Background()
	store := xkv.NewMemory()
	r, clock := newRegistry(t, store)
	key := "api:user:42"

	steps := []struct {
		now     int64
		allowed bool
		retry   int64
		stored  string
	}{
		{0, true, 0, "100"},
		{60, true, 0, "200"},
		{70, false, 80, "200"},
	}
	for _, s := range steps {
		clock.Set(s.now)
		res, err := r.Check(ctx, key, apiCfg)
		require.NoError(t, err)
		assert.Equal(t, s.allowed, res.Allowed, "now=%d", s.now)
		assert.Equal(t, s.retry, res.RetryAfterMs, "now=%d", s.now)

		v, err := store.Get(ctx, "ratelimit:"+key)
		require.NoError(t, err)
		assert.Equal(t, s.stored, string(v), "now=%d", s.now)
	}
}

func TestRegistry_DeniedCheckDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{Memory: xkv.NewMemory()}
	r, clock := newRegistry(t, store)

	_, err := r.Check(ctx, "auth:ip:1.1.1.1", Config{MillisecondsPerRequest: 1000})
	require.NoError(t, err)
	require.Equal(t, int32(1), store.puts.Load())

	for ms := int64(1); ms < 1000; ms += 100 {
		clock.Set(ms)
		res, err := r.Check(ctx, "auth:ip:1.1.1.1", Config{MillisecondsPerRequest: 1000})
		require.NoError(t, err)
		require.False(t, res.Allowed)
	}
	assert.Equal(t, int32(1), store.puts.Load())
}

func TestRegistry_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t, xkv.NewMemory())
	cfg := Config{MillisecondsPerRequest: 1000}

	res, err := r.Check(ctx, ScopeKey("api", "", "1.2.3.4"), cfg)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = r.Check(ctx, ScopeKey("auth", "", "1.2.3.4"), cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = r.Check(ctx, ScopeKey("api", "", "1.2.3.4"), cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRegistry_LoadFailureFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{Memory: xkv.NewMemory(), getErr: errors.New("connection refused")}
	r, clock := newRegistry(t, store)
	clock.Set(1_000_000)

	res, err := r.Check(ctx, "api:user:1", apiCfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.RetryAfterMs)
}

func TestRegistry_PersistFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{Memory: xkv.NewMemory(), putErr: errors.New("READONLY")}
	r, clock := newRegistry(t, store)

	res, err := r.Check(ctx, "api:user:1", apiCfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// 内存状态仍然生效
	clock.Set(10)
	res, err = r.Check(ctx, "api:user:1", apiCfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRegistry_ReactivationReloadsState(t *testing.T) {
	ctx := context.Background()
	store := xkv.NewMemory()
	r, clock := newRegistry(t, store, WithMaxActors(1))
	cfg := Config{MillisecondsPerRequest: 1000}

	_, err := r.Check(ctx, "api:user:a", cfg)
	require.NoError(t, err)
	// a 被 b 挤出内存
	_, err = r.Check(ctx, "api:user:b", cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Active())

	clock.Set(500)
	res, err := r.Check(ctx, "api:user:a", cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(500), res.RetryAfterMs)
}

func TestRegistry_StateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := xkv.NewMemory()
	cfg := Config{MillisecondsPerRequest: 1000}

	first, _ := newRegistry(t, store)
	_, err := first.Check(ctx, "api:user:a", cfg)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, clock := newRegistry(t, store)
	clock.Set(999)
	res, err := second.Check(ctx, "api:user:a", cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(1), res.RetryAfterMs)
}

func TestRegistry_CorruptStateStartsFromZero(t *testing.T) {
	ctx := context.Background()
	store := xkv.NewMemory()
	require.NoError(t, store.Put(ctx, "ratelimit:api:user:x", []byte("not-a-number"), 0))
	r, clock := newRegistry(t, store)
	clock.Set(5)

	res, err := r.Check(ctx, "api:user:x", apiCfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRegistry_StateTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}
	store := xkv.NewMemory(xkv.WithMemoryClock(clock.Now))
	r, err := NewRegistry(store, WithClock(clock.Now), WithStateTTL(time.Minute))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, err = r.Check(ctx, "api:user:1", apiCfg)
	require.NoError(t, err)

	// 间隔 + stateTTL 之内记录仍在
	clock.Set(apiCfg.Interval().Milliseconds() + time.Minute.Milliseconds() - 1)
	_, err = store.Get(ctx, "ratelimit:api:user:1")
	require.NoError(t, err)

	clock.Set(apiCfg.Interval().Milliseconds() + time.Minute.Milliseconds() + 1)
	_, err = store.Get(ctx, "ratelimit:api:user:1")
	assert.True(t, xkv.IsNotFound(err))
}

func TestRegistry_ClosedStoreFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := xkv.NewMemory()
	r, _ := newRegistry(t, store)
	require.NoError(t, store.Close())

	res, err := r.Check(ctx, "api:user:1", apiCfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRegistry_Reset(t *testing.T) {
	ctx := context.Background()
	store := xkv.NewMemory()
	r, clock := newRegistry(t, store)
	cfg := Config{MillisecondsPerRequest: 1000}

	_, err := r.Check(ctx, "api:user:1", cfg)
	require.NoError(t, err)
	clock.Set(1)
	require.NoError(t, r.Reset(ctx, "api:user:1"))

	res, err := r.Check(ctx, "api:user:1", cfg)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRegistry_Errors(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t, xkv.NewMemory())

	_, err := r.Check(ctx, "", apiCfg)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = r.Check(ctx, "api:ip:x", Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Check(canceled, "api:ip:x", apiCfg)
	assert.ErrorIs(t, err, ErrLock)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Check(ctx, "api:ip:x", apiCfg)
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.ErrorIs(t, r.Reset(ctx, "api:ip:x"), ErrRegistryClosed)
}

func TestRegistry_ConcurrentChecksAreLinearized(t *testing.T) {
	ctx := context.Background()
	r, clock := newRegistry(t, xkv.NewMemory())
	cfg := Config{MillisecondsPerRequest: 100, GracePeriodMs: 50}

	const (
		rounds     = 5
		concurrent = 64
	)
	for round := range rounds {
		// 每轮时间前进一个间隔，理论上每轮恰好放行一个请求
		clock.Set(int64(round) * cfg.MillisecondsPerRequest)

		var (
			wg      sync.WaitGroup
			allowed atomic.Int32
		)
		for range concurrent {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := r.Check(ctx, "api:user:hot", cfg)
				if assert.NoError(t, err) && res.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), allowed.Load(), "round %d", round)
	}
}

func TestRegistry_DistributedLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := xkv.NewRedis(client)
	require.NoError(t, err)
	locker, err := xdlock.NewRedis([]redis.UniversalClient{client}, xdlock.WithRetryDelay(time.Millisecond), xdlock.WithTries(500))
	require.NoError(t, err)

	// 两个 Registry 模拟两个实例共享同一个 Redis
	a, clock := newRegistry(t, store, WithDistributedLock(locker), WithMaxActors(1))
	b, err := NewRegistry(store, WithClock(clock.Now), WithDistributedLock(locker), WithMaxActors(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	cfg := Config{MillisecondsPerRequest: 1000}
	res, err := a.Check(ctx, "api:user:1", cfg)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = b.Check(ctx, "api:user:1", cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "1000", mustGet(t, mr, "ratelimit:api:user:1"))
	assert.False(t, mr.Exists("lock:ratelimit:api:user:1"))
}

func TestRegistry_DistributedLockReloadsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := xkv.NewRedis(client)
	require.NoError(t, err)
	locker, err := xdlock.NewRedis([]redis.UniversalClient{client}, xdlock.WithRetryDelay(time.Millisecond), xdlock.WithTries(500))
	require.NoError(t, err)

	// 两个实例都缓存着 actor，交替检查同一个 key
	a, clock := newRegistry(t, store, WithDistributedLock(locker))
	b, err := NewRegistry(store, WithClock(clock.Now), WithDistributedLock(locker))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	cfg := Config{MillisecondsPerRequest: 1000}
	key := "api:user:7"
	steps := []struct {
		r       *Registry
		now     int64
		allowed bool
		stored  string
	}{
		{a, 0, true, "1000"},
		{b, 1000, true, "2000"},
		{a, 1100, false, "2000"},
		{b, 1500, false, "2000"},
		{a, 2000, true, "3000"},
	}
	for i, s := range steps {
		clock.Set(s.now)
		res, err := s.r.Check(ctx, key, cfg)
		require.NoError(t, err)
		assert.Equal(t, s.allowed, res.Allowed, "step %d now=%d", i, s.now)
		assert.Equal(t, s.stored, mustGet(t, mr, "ratelimit:"+key), "step %d now=%d", i, s.now)
	}
}

func TestRegistry_DistributedLockKeepsLocalStateOnReadFailure(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker, err := xdlock.NewRedis([]redis.UniversalClient{client}, xdlock.WithRetryDelay(time.Millisecond), xdlock.WithTries(500))
	require.NoError(t, err)
	store := &brokenStore{Memory: xkv.NewMemory()}
	r, clock := newRegistry(t, store, WithDistributedLock(locker))

	cfg := Config{MillisecondsPerRequest: 1000}
	res, err := r.Check(ctx, "api:user:1", cfg)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	store.getErr = errors.New("down")
	clock.Set(500)
	res, err = r.Check(ctx, "api:user:1", cfg)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(500), res.RetryAfterMs)
}

func TestRegistry_DistributedLockFailure(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker, err := xdlock.NewRedis([]redis.UniversalClient{client}, xdlock.WithTries(1))
	require.NoError(t, err)
	r, _ := newRegistry(t, xkv.NewMemory(), WithDistributedLock(locker))
	mr.Close()

	_, err = r.Check(ctx, "api:user:1", apiCfg)
	assert.ErrorIs(t, err, ErrLock)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRegistry_Metrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	store := &brokenStore{Memory: xkv.NewMemory(), getErr: errors.New("down")}
	r, _ := newRegistry(t, store, WithMeterProvider(mp))

	_, err := r.Check(ctx, "api:user:1", apiCfg)
	require.NoError(t, err)
	_, err = r.Check(ctx, "api:user:1", apiCfg)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]map[attribute.Distinct]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			sums[m.Name] = map[attribute.Distinct]int64{}
			for _, dp := range sum.DataPoints {
				sums[m.Name][dp.Attributes.Equivalent()] = dp.Value
			}
		}
	}

	allowedSet := attribute.NewSet(attribute.String("scope", "api"), attribute.Bool("allowed", true))
	deniedSet := attribute.NewSet(attribute.String("scope", "api"), attribute.Bool("allowed", false))
	loadSet := attribute.NewSet(attribute.String("op", opLoad))
	assert.Equal(t, int64(1), sums[metricChecks][allowedSet.Equivalent()])
	assert.Equal(t, int64(1), sums[metricChecks][deniedSet.Equivalent()])
	assert.Equal(t, int64(1), sums[metricStorageErrors][loadSet.Equivalent()])
}

func TestRegistry_Tracing(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	r, _ := newRegistry(t, xkv.NewMemory(), WithTracerProvider(tp))
	_, err := r.Check(ctx, "auth:ip:9.9.9.9", apiCfg)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "xlimit.Check", spans[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "auth", attrs["xlimit.scope"].AsString())
	assert.True(t, attrs["xlimit.allowed"].AsBool())
	assert.NotContains(t, attrs["xlimit.key_hash"].AsString(), "9.9.9.9")
}
