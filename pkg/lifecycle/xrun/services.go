package xrun

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server *http.Server 满足此接口。
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer 把 srv 包装成服务：ctx 取消后在 shutdownTimeout 内优雅关闭。
// shutdownTimeout <= 0 表示等待所有在途请求结束。
func HTTPServer(srv Server, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if srv == nil {
			return ErrNilServer
		}
		served := make(chan error, 1)
		go func() { served <- srv.ListenAndServe() }()

		select {
		case err := <-served:
			// 启动失败（端口占用等）或被外部关闭
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		sctx := context.WithoutCancel(ctx)
		if shutdownTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(sctx, shutdownTimeout)
			defer cancel()
		}
		err := srv.Shutdown(sctx)
		if serveErr := <-served; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return errors.Join(err, serveErr)
		}
		return err
	}
}

// Ticker 每隔 interval 执行一次 fn，fn 返回错误时服务退出。
func Ticker(interval time.Duration, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if err := fn(ctx); err != nil {
					return err
				}
			}
		}
	}
}
