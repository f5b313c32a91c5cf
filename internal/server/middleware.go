package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/context/xctx"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/resilience/xlimit"
)

// HeaderRequestID 请求 ID 头，客户端提供时沿用。
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// requestID 为请求分配 ID 并写入 xctx 和响应头。
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		if ctx, err := xctx.WithRequestID(r.Context(), id); err == nil {
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP 解析客户端 IP 写入 xctx，限流和日志都从 xctx 读取。
func clientIP(trustRemote bool) func(http.Handler) http.Handler {
	resolve := xlimit.ClientIP
	if trustRemote {
		resolve = xlimit.ClientIPWithRemote
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ctx, err := xctx.WithClientIP(r.Context(), resolve(r)); err == nil {
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessLog 请求结束后记录一条日志，request_id 和 client_ip 由 xlog 从 ctx 补充。
func accessLog(logger xlog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				logger.Error(r.Context(), "http request", attrs...)
				return
			}
			logger.Info(r.Context(), "http request", attrs...)
		})
	}
}

// recoverer 捕获 handler panic，记录堆栈并返回 500。
func recoverer(logger xlog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error(r.Context(), "http handler panic",
					slog.String("panic", fmt.Sprint(p)),
					slog.String("stack", string(debug.Stack())))
				writeError(w, http.StatusInternalServerError, internalError, "Internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
