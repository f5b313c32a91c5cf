package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/DosymzhanKogabaev/finsight-ai/internal/config"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/config/xconf"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/lifecycle/xrun"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
)

const statsInterval = time.Minute

// HTTPServer 返回监听 cfg.Server.Addr 的 http.Server。
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
	}
}

// Services 返回需要并发运行的服务。src 非空时监视配置文件并热更新限流参数和日志级别。
func (s *Server) Services(src *xconf.Source) ([]xrun.Service, error) {
	services := []xrun.Service{
		{Name: "http", Run: xrun.HTTPServer(s.HTTPServer(), s.cfg.Server.ShutdownTimeout)},
		{Name: "limiter-stats", Run: xrun.Ticker(statsInterval, s.logStats)},
	}
	if src == nil || src.Path() == "" {
		return services, nil
	}
	w, err := src.Watch(s.reload)
	if err != nil {
		return nil, err
	}
	return append(services, xrun.Service{Name: "config-watch", Run: w.Run}), nil
}

func (s *Server) logStats(ctx context.Context) error {
	s.logger.Debug(ctx, "rate limiter actors", slog.Int("active", s.registry.Active()))
	return nil
}

// reload 只应用可热更新的部分，其余配置需要重启。
func (s *Server) reload(src *xconf.Source, err error) {
	ctx := context.Background()
	if err != nil {
		s.logger.Warn(ctx, "config reload failed, keeping previous config", xlog.Err(err))
		return
	}
	cfg, err := config.FromSource(src)
	if err != nil {
		s.logger.Warn(ctx, "config reload failed, keeping previous config", xlog.Err(err))
		return
	}
	if err := s.ApplyLimits(cfg.Limits.API, cfg.Limits.Auth); err != nil {
		s.logger.Warn(ctx, "invalid rate limits in reloaded config", xlog.Err(err))
	}
	if lv, ok := s.logger.(xlog.LoggerWithLevel); ok && cfg.Log.Level != "" {
		level, err := xlog.ParseLevel(cfg.Log.Level)
		if err != nil {
			s.logger.Warn(ctx, "invalid log level in reloaded config", xlog.Err(err))
			return
		}
		lv.SetLevel(level)
	}
}
