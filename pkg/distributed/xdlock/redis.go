package xdlock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker 跨实例锁。
type Locker interface {
	Lock(ctx context.Context, key string) (Handle, error)
}

// Handle 一次成功的加锁。
type Handle interface {
	Unlock(ctx context.Context) error
	Key() string
}

// Option 配置 Redis。
type Option func(*options)

type options struct {
	prefix     string
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

func defaultOptions() options {
	return options{
		prefix:     "lock:",
		expiry:     2 * time.Second,
		tries:      20,
		retryDelay: 10 * time.Millisecond,
	}
}

// WithKeyPrefix 锁 key 前缀，默认 "lock:"。
func WithKeyPrefix(p string) Option {
	return func(o *options) { o.prefix = p }
}

// WithExpiry 锁的最长持有时间，超时自动释放，默认 2s。
func WithExpiry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithTries 加锁最大尝试次数，默认 20。
func WithTries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.tries = n
		}
	}
}

// WithRetryDelay 两次尝试之间的等待，默认 10ms。
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// Redis 基于 redsync 的 Locker，不负责关闭传入的客户端。
type Redis struct {
	rs   *redsync.Redsync
	opts options
}

// NewRedis 创建 Redis 锁。
func NewRedis(clients []redis.UniversalClient, opts ...Option) (*Redis, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, c := range clients {
		if c == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilClient, i)
		}
		pools[i] = goredis.NewPool(c)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{rs: redsync.New(pools...), opts: o}, nil
}

// Lock 阻塞加锁直到成功、重试耗尽或 ctx 结束。
func (r *Redis) Lock(ctx context.Context, key string) (Handle, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	full := r.opts.prefix + key
	m := r.rs.NewMutex(full,
		redsync.WithExpiry(r.opts.expiry),
		redsync.WithTries(r.opts.tries),
		redsync.WithRetryDelay(r.opts.retryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		// redsync 不透传 ctx 错误
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, wrapRedsync(err)
	}
	return &handle{m: m, key: full}, nil
}

type handle struct {
	m   *redsync.Mutex
	key string
}

func (h *handle) Unlock(ctx context.Context) error {
	ok, err := h.m.UnlockContext(ctx)
	if err != nil {
		return wrapRedsync(err)
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

func (h *handle) Key() string {
	return h.key
}

var _ Locker = (*Redis)(nil)
