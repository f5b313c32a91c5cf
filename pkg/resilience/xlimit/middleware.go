package xlimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"go4.org/netipx"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/context/xctx"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
)

const defaultCheckTimeout = 200 * time.Millisecond

// 429 响应体字段
const (
	DeniedError   = "TooManyRequestsException"
	DeniedMessage = "Rate limit exceeded. Please try again later."
)

// DeniedBody 429 响应体。
type DeniedBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Status       int    `json:"status"`
	RetryAfter   int64  `json:"retryAfter"`
	RetryAfterMs int64  `json:"retryAfterMs"`
	LimitMs      int64  `json:"limitMs"`
}

// MiddlewareOption 配置 HTTPMiddleware。
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	timeout    time.Duration
	identity   func(*http.Request) string
	clientIP   func(*http.Request) string
	skip       func(*http.Request) bool
	internal   *netipx.IPSet
	logger     xlog.Logger
	denyWriter func(http.ResponseWriter, *http.Request, *Result)
	configFn   func() Config
}

func defaultMiddlewareOptions() *middlewareOptions {
	return &middlewareOptions{
		timeout:    defaultCheckTimeout,
		identity:   func(r *http.Request) string { return xctx.UserID(r.Context()) },
		clientIP:   defaultClientIP,
		logger:     xlog.Nop(),
		denyWriter: WriteDenied,
	}
}

// 入口中间件已解析出的 IP 优先，否则按请求头解析。
func defaultClientIP(r *http.Request) string {
	if ip := xctx.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return ClientIP(r)
}

// WithCheckTimeout 单次检查的超时，超时视为放行，默认 200ms。
func WithCheckTimeout(d time.Duration) MiddlewareOption {
	return func(o *middlewareOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithIdentityFunc 返回已认证用户 ID，空字符串表示未认证。默认读取 xctx.UserID。
func WithIdentityFunc(fn func(*http.Request) string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.identity = fn
		}
	}
}

// WithClientIPFunc 替换客户端 IP 解析。
func WithClientIPFunc(fn func(*http.Request) string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.clientIP = fn
		}
	}
}

// WithSkipFunc 返回 true 的请求跳过限流。
func WithSkipFunc(fn func(*http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.skip = fn
	}
}

// WithInternalNetworks RemoteAddr 落在这些网段内的请求视为内部请求。
func WithInternalNetworks(set *netipx.IPSet) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.internal = set
	}
}

// WithMiddlewareLogger 设置日志。
func WithMiddlewareLogger(l xlog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDenyWriter 替换 429 响应的写法。
func WithDenyWriter(fn func(http.ResponseWriter, *http.Request, *Result)) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.denyWriter = fn
		}
	}
}

// WithConfigFunc 每个请求调用 fn 取当前配置，用于配置热更新。
// fn 返回的配置非法时使用构造时传入的 cfg。
func WithConfigFunc(fn func() Config) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.configFn = fn
	}
}

// ParseNetworks 把 CIDR 或单个 IP 列表构造成 IPSet。
func ParseNetworks(items []string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("xlimit: parse network %q: %w", item, err)
			}
			b.AddPrefix(p)
			continue
		}
		a, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("xlimit: parse network %q: %w", item, err)
		}
		b.Add(a.Unmap())
	}
	return b.IPSet()
}

// HTTPMiddleware 为 scope 创建限流中间件。
//
// checker 为 nil 或 cfg 非法属于编程错误，直接 panic，应在启动时暴露。
//
//	mw := xlimit.HTTPMiddleware(registry, "api", xlimit.Config{MillisecondsPerRequest: 70, GracePeriodMs: 5000})
//	mux.Handle("/api/", mw(apiHandler))
func HTTPMiddleware(checker Checker, scope string, cfg Config, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if checker == nil {
		panic("xlimit: HTTPMiddleware requires a non-nil Checker")
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("xlimit: HTTPMiddleware(%q): %v", scope, err))
	}
	o := defaultMiddlewareOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.bypass(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := ScopeKey(scope, o.identity(r), o.clientIP(r))
			res, err := o.check(r.Context(), checker, key, o.config(cfg))
			if err != nil {
				o.logger.Warn(r.Context(), "xlimit: check failed, allowing request",
					slog.String(xlog.KeyScope, scope), xlog.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				o.denyWriter(w, r, res)
				return
			}

			next.ServeHTTP(&headerWriter{ResponseWriter: w, res: res}, r)
		})
	}
}

func (o *middlewareOptions) bypass(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	if strings.EqualFold(r.Header.Get(HeaderInternalRequest), "true") || IsInternal(r.Context()) {
		return true
	}
	if o.internal != nil {
		if addr, ok := remoteAddr(r); ok && o.internal.Contains(addr) {
			return true
		}
	}
	return o.skip != nil && o.skip(r)
}

func (o *middlewareOptions) config(static Config) Config {
	if o.configFn == nil {
		return static
	}
	if c := o.configFn(); c.Validate() == nil {
		return c
	}
	return static
}

func (o *middlewareOptions) check(ctx context.Context, checker Checker, key string, cfg Config) (res *Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	defer func() {
		// checker 的 panic 同样按放行处理
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("xlimit: checker panic: %v", p)
		}
	}()

	res, err = checker.Check(ctx, key, cfg)
	if err == nil && res == nil {
		err = fmt.Errorf("xlimit: checker returned nil result")
	}
	return res, err
}

// WriteDenied 写出默认的 429 响应。
func WriteDenied(w http.ResponseWriter, _ *http.Request, res *Result) {
	res.SetHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	// 写入失败通常是客户端已断开
	_ = json.NewEncoder(w).Encode(DeniedBody{
		Error:        DeniedError,
		Message:      DeniedMessage,
		Status:       http.StatusTooManyRequests,
		RetryAfter:   res.RetryAfterSeconds(),
		RetryAfterMs: res.RetryAfterMs,
		LimitMs:      res.LimitMs,
	})
}
