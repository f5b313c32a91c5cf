package xlog

import (
	"context"
	"log/slog"
)

// Logger 日志接口，方法只接受 slog.Attr。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带固定属性的派生 Logger，派生 Logger 与父级共享级别。
	With(attrs ...slog.Attr) Logger
}

// Leveler 运行时级别控制。
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel 由 Build 返回。
type LoggerWithLevel interface {
	Logger
	Leveler
}

// 常用属性 key
const (
	KeyError  = "error"
	KeyScope  = "scope"
	KeyKey    = "key"
	KeyReason = "reason"
)

// Err 把 error 转为属性，nil 返回空属性（slog 会忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
