package xkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultTripAfter    = 5
	defaultOpenTimeout  = 30 * time.Second
	defaultHalfOpenReqs = 1
)

// BreakerOption 配置 WithBreaker。
type BreakerOption func(*breakerOptions)

type breakerOptions struct {
	tripAfter     uint32
	openTimeout   time.Duration
	onStateChange func(name string, from, to gobreaker.State)
}

// WithTripAfter 连续失败 n 次后打开熔断，默认 5。
func WithTripAfter(n uint32) BreakerOption {
	return func(o *breakerOptions) {
		if n > 0 {
			o.tripAfter = n
		}
	}
}

// WithOpenTimeout 熔断打开后进入半开状态前的等待时间，默认 30s。
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(o *breakerOptions) {
		if d > 0 {
			o.openTimeout = d
		}
	}
}

// WithStateChange 注册熔断状态变化回调。
func WithStateChange(fn func(name string, from, to gobreaker.State)) BreakerOption {
	return func(o *breakerOptions) {
		o.onStateChange = fn
	}
}

// Breaker 为 Store 加熔断保护。
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]byte]
}

// callerDone 标记调用方 ctx 已结束时的错误，这类错误不计入熔断失败。
type callerDone struct {
	err error
}

func (e *callerDone) Error() string { return e.err.Error() }
func (e *callerDone) Unwrap() error { return e.err }

// WithBreaker 包装 next。ErrNotFound、取消以及调用方 ctx 到期后的错误不计入失败。
func WithBreaker(next Store, name string, opts ...BreakerOption) *Breaker {
	o := breakerOptions{
		tripAfter:   defaultTripAfter,
		openTimeout: defaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: defaultHalfOpenReqs,
		Timeout:     o.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= o.tripAfter
		},
		IsSuccessful: func(err error) bool {
			var cd *callerDone
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.As(err, &cd)
		},
		OnStateChange: o.onStateChange,
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[[]byte](st)}
}

// State 返回熔断器当前状态。
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) exec(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	v, err := b.cb.Execute(func() ([]byte, error) {
		v, err := fn()
		if err != nil && ctx.Err() != nil {
			return v, &callerDone{err: err}
		}
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	var cd *callerDone
	if errors.As(err, &cd) {
		return v, cd.err
	}
	return v, err
}

// Get 经熔断器读取 key。
func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	return b.exec(ctx, func() ([]byte, error) {
		return b.next.Get(ctx, key)
	})
}

// Put 经熔断器写入 key。
func (b *Breaker) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.exec(ctx, func() ([]byte, error) {
		return nil, b.next.Put(ctx, key, value, ttl)
	})
	return err
}

// Delete 经熔断器删除 key。
func (b *Breaker) Delete(ctx context.Context, key string) error {
	_, err := b.exec(ctx, func() ([]byte, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}

// List 经熔断器列出 prefix 下的 key。
func (b *Breaker) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	_, err := b.exec(ctx, func() ([]byte, error) {
		var err error
		keys, err = b.next.List(ctx, prefix)
		return nil, err
	})
	return keys, err
}

var _ Store = (*Breaker)(nil)
