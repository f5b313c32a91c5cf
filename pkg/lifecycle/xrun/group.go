package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
)

// Service 一个带名字的长期运行函数，Run 应在 ctx 取消后尽快返回。
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Group 并发运行服务，任一服务返回错误即取消其余服务。
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	base   context.Context
	cancel context.CancelCauseFunc
	opts   options
}

// NewGroup 创建 Group，返回的 ctx 在第一个服务出错或 Cancel 后取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	base, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(base)
	return &Group{eg: eg, ctx: egCtx, base: base, cancel: cancel, opts: o}, egCtx
}

// Go 启动一个服务。
func (g *Group) Go(svc Service) {
	g.eg.Go(func() error {
		if svc.Run == nil {
			return ErrNilFunc
		}
		attr := slog.String("service", svc.Name)
		g.opts.logger.Debug(g.ctx, "xrun: service starting", attr)
		err := svc.Run(g.ctx)
		if err != nil && !(g.ctx.Err() != nil && isContextErr(err)) {
			g.opts.logger.Error(g.ctx, "xrun: service failed", attr, xlog.Err(err))
		} else {
			g.opts.logger.Debug(g.ctx, "xrun: service stopped", attr)
		}
		return err
	})
}

// Cancel 以 cause 为原因停止所有服务，Wait 会返回 cause。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待所有服务结束。
//
// 由 Cancel 或信号触发的退出返回对应的 cause；父 ctx 取消或到期返回 nil。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	if g.base.Err() != nil {
		cause := context.Cause(g.base)
		if cause != nil && !isContextErr(cause) {
			return cause
		}
		if isContextErr(err) {
			return nil
		}
	}
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Run 运行服务直到全部结束，期间收到信号会以 *SignalError 退出。
func Run(ctx context.Context, opts []Option, services ...Service) error {
	g, _ := NewGroup(ctx, opts...)
	if !g.opts.noSignal {
		sigs := g.opts.signals
		if len(sigs) == 0 {
			sigs = DefaultSignals()
		}
		g.Go(Service{Name: "signal", Run: func(ctx context.Context) error {
			return g.waitSignal(ctx, sigs)
		}})
	}
	for _, svc := range services {
		g.Go(svc)
	}
	return g.Wait()
}

func (g *Group) waitSignal(ctx context.Context, sigs []os.Signal) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	var sig os.Signal
	select {
	case sig = <-ch:
	case sig = <-injectedSignal(ctx):
	case <-ctx.Done():
		return nil
	}
	g.opts.logger.Info(ctx, "xrun: received signal", slog.String("signal", sig.String()))
	g.cancel(&SignalError{Signal: sig})
	return nil
}

type signalKey struct{}

// withSignal 测试用：从 ctx 注入信号，避免给进程发送真实信号。
func withSignal(ctx context.Context, ch <-chan os.Signal) context.Context {
	return context.WithValue(ctx, signalKey{}, ch)
}

func injectedSignal(ctx context.Context) <-chan os.Signal {
	ch, _ := ctx.Value(signalKey{}).(<-chan os.Signal)
	return ch
}
