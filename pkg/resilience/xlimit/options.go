package xlimit

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/distributed/xdlock"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
)

const (
	defaultMaxActors      = 100_000
	defaultIdleTTL        = 10 * time.Minute
	defaultStateTTL       = time.Hour
	defaultPersistTimeout = time.Second
	defaultKeyPrefix      = "ratelimit:"
)

// Option 配置 Registry。
type Option func(*options)

type options struct {
	now            func() time.Time
	logger         xlog.Logger
	maxActors      int
	idleTTL        time.Duration
	stateTTL       time.Duration
	persistTimeout time.Duration
	keyPrefix      string
	distLock       xdlock.Locker
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

func defaultOptions() options {
	return options{
		now:            time.Now,
		logger:         xlog.Nop(),
		maxActors:      defaultMaxActors,
		idleTTL:        defaultIdleTTL,
		stateTTL:       defaultStateTTL,
		persistTimeout: defaultPersistTimeout,
		keyPrefix:      defaultKeyPrefix,
	}
}

// WithClock 替换时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger 设置日志，默认丢弃。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxActors 内存中同时驻留的 actor 上限，默认 100000。
// 超过上限时淘汰最久未使用的 actor，下次访问重新加载。
func WithMaxActors(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxActors = n
		}
	}
}

// WithIdleTTL actor 空闲多久后失活，默认 10 分钟。
func WithIdleTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTTL = d
		}
	}
}

// WithStateTTL 持久化记录在间隔之外额外保留的时间，默认 1 小时，0 表示不过期。
func WithStateTTL(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.stateTTL = d
		}
	}
}

// WithPersistTimeout 写回状态的超时，独立于调用方 ctx，默认 1s。
func WithPersistTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.persistTimeout = d
		}
	}
}

// WithKeyPrefix 存储 key 前缀，默认 "ratelimit:"。
func WithKeyPrefix(p string) Option {
	return func(o *options) {
		o.keyPrefix = p
	}
}

// WithDistributedLock 多实例部署时在进程内锁之外再加跨实例锁。
func WithDistributedLock(l xdlock.Locker) Option {
	return func(o *options) {
		o.distLock = l
	}
}

// WithMeterProvider 启用 OpenTelemetry 指标。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 启用 OpenTelemetry 追踪。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}
