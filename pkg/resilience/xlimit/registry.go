package xlimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/storage/xkv"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/util/xkeylock"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/util/xlru"
)

// Checker 对一个 scope key 做准入判定。
type Checker interface {
	Check(ctx context.Context, key string, cfg Config) (*Result, error)
}

// Registry 为每个 scope key 维护一个 actor，并保证同一 key 的检查线性化。
//
// actor 驻留在带 TTL 的 LRU 中，被淘汰即失活，下次访问从 store 重新加载。
// store 中某个 key 的状态只由 Registry 写入。
type Registry struct {
	store   xkv.Store
	locks   *xkeylock.Map
	actors  *xlru.Cache[string, *actor]
	opts    options
	metrics *metrics
	tracer  trace.Tracer
	closed  atomic.Bool
}

// NewRegistry 创建 Registry。
func NewRegistry(store xkv.Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xlimit: create metrics: %w", err)
	}
	locks, err := xkeylock.New()
	if err != nil {
		return nil, err
	}
	actors, err := xlru.New[string, *actor](xlru.Config{Size: o.maxActors, TTL: o.idleTTL}, nil)
	if err != nil {
		_ = locks.Close()
		return nil, err
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	return &Registry{
		store:   store,
		locks:   locks,
		actors:  actors,
		opts:    o,
		metrics: m,
		tracer:  tp.Tracer("github.com/DosymzhanKogabaev/finsight-ai/pkg/resilience/xlimit"),
	}, nil
}

// Check 对 key 执行一次准入判定。
//
// 返回错误只表示无法完成判定（Registry 已关闭、配置非法、拿不到 key 锁），
// 存储读写失败不会作为错误返回。
func (g *Registry) Check(ctx context.Context, key string, cfg Config) (*Result, error) {
	if g.closed.Load() {
		return nil, ErrRegistryClosed
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	scope := scopeOf(key)
	ctx, span := g.tracer.Start(ctx, "xlimit.Check", trace.WithAttributes(
		attribute.String("xlimit.scope", scope),
		attribute.String("xlimit.key_hash", strconv.FormatUint(xxhash.Sum64String(key), 16)),
	))
	defer span.End()

	unlock, err := g.lock(ctx, key)
	if err != nil {
		g.metrics.recordStorageError(ctx, opLock)
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		return nil, err
	}
	defer unlock()

	a := g.activate(ctx, key)
	res, changed := a.check(g.opts.now().UnixMilli(), cfg)
	if changed {
		g.persist(ctx, key, a.nextAllowed, cfg)
	}
	g.actors.Set(key, a)

	span.SetAttributes(attribute.Bool("xlimit.allowed", res.Allowed))
	g.metrics.recordCheck(ctx, scope, res.Allowed, time.Since(start))
	return res, nil
}

// Reset 清除 key 的状态，下一次检查立即放行。
func (g *Registry) Reset(ctx context.Context, key string) error {
	if g.closed.Load() {
		return ErrRegistryClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	unlock, err := g.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	g.actors.Delete(key)
	if err := g.store.Delete(ctx, g.storageKey(key)); err != nil {
		g.metrics.recordStorageError(ctx, opReset)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Active 返回内存中驻留的 actor 数量（可能包含已过期未清理的）。
func (g *Registry) Active() int {
	return g.actors.Len()
}

// Close 关闭 Registry，不关闭 store。
func (g *Registry) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	g.actors.Close()
	return g.locks.Close()
}

// lock 进入 key 的临界区，返回的函数退出临界区。
func (g *Registry) lock(ctx context.Context, key string) (func(), error) {
	guard, err := g.locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLock, err)
	}
	if g.opts.distLock == nil {
		return func() { _ = guard.Unlock() }, nil
	}

	h, err := g.opts.distLock.Lock(ctx, g.storageKey(key))
	if err != nil {
		_ = guard.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrLock, err)
	}
	return func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.persistTimeout)
		defer cancel()
		if err := h.Unlock(uctx); err != nil {
			g.opts.logger.Warn(ctx, "xlimit: release distributed lock failed",
				slog.String(xlog.KeyScope, scopeOf(key)), xlog.Err(err))
		}
		_ = guard.Unlock()
	}, nil
}

// activate 返回 key 的 actor，首次访问时从 store 加载。
//
// 启用跨实例锁时其他实例可能已推进状态，每次进入临界区都重新读取；
// 读取失败时沿用本地状态，本地也没有时按 0 处理。
func (g *Registry) activate(ctx context.Context, key string) *actor {
	a, ok := g.actors.Get(key)
	if !ok {
		a = &actor{}
	}
	if !a.loaded || g.opts.distLock != nil {
		v, err := g.load(ctx, key)
		if err == nil || !a.loaded {
			a.nextAllowed = v
		}
		a.loaded = true
	}
	return a
}

// load 读取持久化状态。缺失或损坏返回 0；读取失败返回 0 和错误，错误已记录。
func (g *Registry) load(ctx context.Context, key string) (int64, error) {
	raw, err := g.store.Get(ctx, g.storageKey(key))
	if errors.Is(err, xkv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStorage, err)
		g.metrics.recordStorageError(ctx, opLoad)
		g.opts.logger.Warn(ctx, "xlimit: load state failed",
			slog.String(xlog.KeyScope, scopeOf(key)), xlog.Err(err))
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || v < 0 {
		g.opts.logger.Warn(ctx, "xlimit: corrupt state, starting from zero",
			slog.String(xlog.KeyScope, scopeOf(key)), slog.String("raw", string(raw)))
		return 0, nil
	}
	return v, nil
}

// persist 在临界区内写回状态。写入使用独立超时，调用方取消不会中断写入，
// 失败只记录日志。
func (g *Registry) persist(ctx context.Context, key string, next int64, cfg Config) {
	var ttl time.Duration
	if g.opts.stateTTL > 0 {
		ttl = cfg.Interval() + g.opts.stateTTL
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.persistTimeout)
	defer cancel()

	if err := g.store.Put(pctx, g.storageKey(key), strconv.AppendInt(nil, next, 10), ttl); err != nil {
		g.metrics.recordStorageError(ctx, opPersist)
		g.opts.logger.Warn(ctx, "xlimit: persist state failed",
			slog.String(xlog.KeyScope, scopeOf(key)), xlog.Err(fmt.Errorf("%w: %w", ErrStorage, err)))
	}
}

func (g *Registry) storageKey(key string) string {
	return g.opts.keyPrefix + key
}

// scopeOf 取 key 第一个冒号前的部分。
func scopeOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

var _ Checker = (*Registry)(nil)
