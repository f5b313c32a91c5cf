package xauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/context/xctx"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
)

// UnauthorizedError 401 响应体的 error 字段。
const UnauthorizedError = "UnauthorizedException"

// UnauthorizedBody 401 响应体。
type UnauthorizedBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  Reason `json:"reason"`
	Status  int    `json:"status"`
}

// GateOption 配置 Gate。
type GateOption func(*gateOptions)

type gateOptions struct {
	private func(*http.Request) bool
	logger  xlog.Logger
	writer  func(http.ResponseWriter, *http.Request, *AuthError)
}

// WithPrivateFunc 判断哪些请求需要认证，默认 PathContainsPrivate。
func WithPrivateFunc(fn func(*http.Request) bool) GateOption {
	return func(o *gateOptions) {
		if fn != nil {
			o.private = fn
		}
	}
}

// WithGateLogger 设置日志。
func WithGateLogger(l xlog.Logger) GateOption {
	return func(o *gateOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUnauthorizedWriter 替换 401 响应的写法。
func WithUnauthorizedWriter(fn func(http.ResponseWriter, *http.Request, *AuthError)) GateOption {
	return func(o *gateOptions) {
		if fn != nil {
			o.writer = fn
		}
	}
}

// Gate 对私有路由强制认证，任何校验失败都拒绝（fail-closed）。
//
// 如果 Resolver 已经校验过，直接复用其结果。
func Gate(codec *Codec, opts ...GateOption) func(http.Handler) http.Handler {
	if codec == nil {
		panic("xauth: Gate requires a non-nil Codec")
	}
	o := &gateOptions{
		private: PathContainsPrivate,
		logger:  xlog.Nop(),
		writer:  WriteUnauthorized,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !o.private(r) {
				next.ServeHTTP(w, r)
				return
			}

			v, ok := VerificationFrom(r.Context())
			if !ok {
				v = verify(codec, r)
			}
			p, aerr := admit(v)
			if aerr != nil {
				o.logger.Info(r.Context(), "xauth: request rejected",
					slog.String(xlog.KeyReason, string(aerr.Reason)),
					slog.String("path", r.URL.Path))
				o.writer(w, r, aerr)
				return
			}

			ctx := withPayload(r.Context(), p)
			if uctx, err := xctx.WithUserID(ctx, p.UserID); err == nil {
				ctx = uctx
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func admit(v *Verification) (*Payload, *AuthError) {
	if !v.Present {
		return nil, newAuthError(ReasonMissingToken, nil)
	}
	if v.Err != nil {
		var ae *AuthError
		if errors.As(v.Err, &ae) {
			return nil, ae
		}
		return nil, newAuthError(ReasonInvalidSignature, v.Err)
	}
	if v.Payload == nil {
		return nil, newAuthError(ReasonMalformedPayload, nil)
	}
	return v.Payload, nil
}

// WriteUnauthorized 写出默认的 401 响应。
func WriteUnauthorized(w http.ResponseWriter, _ *http.Request, err *AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(UnauthorizedBody{
		Error:   UnauthorizedError,
		Message: err.Message(),
		Reason:  err.Reason,
		Status:  http.StatusUnauthorized,
	})
}
