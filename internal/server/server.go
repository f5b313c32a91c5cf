// Package server 组装 finsight-gate 的 HTTP 服务：身份识别、限流、认证和令牌接口。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/DosymzhanKogabaev/finsight-ai/internal/config"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/business/xauth"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/resilience/xlimit"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/storage/xkv"
)

// 限流 scope
const (
	ScopeAPI  = "api"
	ScopeAuth = "auth"
)

// Option 配置 Server。
type Option func(*options)

type options struct {
	store xkv.Store
	now   func() time.Time
}

// WithStore 使用给定存储，忽略配置中的后端，测试用。
func WithStore(s xkv.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock 替换限流和令牌使用的时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// limitSet 当前生效的限流参数，热更新时整体替换。
type limitSet struct {
	api  xlimit.Config
	auth xlimit.Config
}

func (l *limitSet) of(scope string) xlimit.Config {
	if scope == ScopeAuth {
		return l.auth
	}
	return l.api
}

// Server 持有所有组件，Handler 返回完整的路由。
type Server struct {
	cfg      *config.Config
	logger   xlog.Logger
	backend  *backend
	registry *xlimit.Registry
	codec    *xauth.Codec
	issuer   *xauth.Issuer
	sessions *xauth.RefreshStore
	limits   atomic.Pointer[limitSet]
	handler  http.Handler
}

// New 按 cfg 创建 Server。cfg 应已通过 Validate。
func New(cfg *config.Config, logger xlog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalid)
	}
	if logger == nil {
		logger = xlog.Nop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	s := &Server{cfg: cfg, logger: logger}
	if o.store != nil {
		s.backend = &backend{store: o.store, limits: o.store, sessions: o.store}
	} else {
		b, err := openBackend(cfg.Storage, cfg.Limits.DistributedLock, logger)
		if err != nil {
			return nil, err
		}
		s.backend = b
	}
	if err := s.build(o); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.limits.Store(&limitSet{api: cfg.Limits.API, auth: cfg.Limits.Auth})

	h, err := s.routes()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.handler = h
	return s, nil
}

func (s *Server) build(o options) error {
	regOpts := []xlimit.Option{
		xlimit.WithClock(o.now),
		xlimit.WithLogger(s.logger),
		xlimit.WithMaxActors(s.cfg.Limits.MaxActors),
		xlimit.WithIdleTTL(s.cfg.Limits.IdleTTL),
		xlimit.WithStateTTL(s.cfg.Limits.StateTTL),
		xlimit.WithMeterProvider(otel.GetMeterProvider()),
		xlimit.WithTracerProvider(otel.GetTracerProvider()),
	}
	if s.backend.locker != nil {
		regOpts = append(regOpts, xlimit.WithDistributedLock(s.backend.locker))
	}
	registry, err := xlimit.NewRegistry(s.backend.limits, regOpts...)
	if err != nil {
		return err
	}
	s.registry = registry

	codec, err := xauth.NewCodec([]byte(s.cfg.Auth.Secret), xauth.WithCodecClock(o.now))
	if err != nil {
		return err
	}
	s.codec = codec

	sessions, err := xauth.NewRefreshStore(s.backend.sessions, xauth.WithStoreClock(o.now))
	if err != nil {
		return err
	}
	s.sessions = sessions

	issuer, err := xauth.NewIssuer(codec,
		xauth.WithAccessTTL(s.cfg.Auth.AccessTTL),
		xauth.WithRefreshTTL(s.cfg.Auth.RefreshTTL),
		xauth.WithRefreshStore(sessions),
	)
	if err != nil {
		return err
	}
	s.issuer = issuer
	return nil
}

// Handler 返回完整路由。
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Issuer 供 CLI 签发令牌。
func (s *Server) Issuer() *xauth.Issuer {
	return s.issuer
}

// Registry 返回限流 Registry。
func (s *Server) Registry() *xlimit.Registry {
	return s.registry
}

// ApplyLimits 替换生效的限流参数，任一参数非法时保持原值。
func (s *Server) ApplyLimits(api, auth xlimit.Config) error {
	if err := errors.Join(api.Validate(), auth.Validate()); err != nil {
		return err
	}
	s.limits.Store(&limitSet{api: api, auth: auth})
	s.logger.Info(context.Background(), "rate limits updated",
		slog.Int64("api_mpr", api.MillisecondsPerRequest),
		slog.Int64("api_grace", api.GracePeriodMs),
		slog.Int64("auth_mpr", auth.MillisecondsPerRequest),
		slog.Int64("auth_grace", auth.GracePeriodMs))
	return nil
}

// Limits 返回 scope 当前生效的限流参数。
func (s *Server) Limits(scope string) xlimit.Config {
	return s.limits.Load().of(scope)
}

// Close 释放 Registry 和存储。
func (s *Server) Close() error {
	var errs []error
	if s.registry != nil {
		errs = append(errs, s.registry.Close())
	}
	if s.backend != nil {
		errs = append(errs, s.backend.close())
	}
	return errors.Join(errs...)
}
