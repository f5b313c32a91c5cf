package xrun

import (
	"os"
	"syscall"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
)

// Option 配置 Group。
type Option func(*options)

type options struct {
	logger   xlog.Logger
	signals  []os.Signal
	noSignal bool
}

func defaultOptions() options {
	return options{logger: xlog.Nop()}
}

// WithLogger 记录服务启停，默认丢弃。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSignals 覆盖 Run 监听的信号，默认 DefaultSignals。
func WithSignals(sigs ...os.Signal) Option {
	copied := append([]os.Signal(nil), sigs...)
	return func(o *options) {
		o.signals = copied
	}
}

// WithoutSignalHandler Run 不监听信号。
func WithoutSignalHandler() Option {
	return func(o *options) {
		o.noSignal = true
	}
}

// DefaultSignals SIGINT、SIGTERM、SIGQUIT。
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}
