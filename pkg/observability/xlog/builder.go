package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Builder 日志构建器，配置错误延迟到 Build 返回。
type Builder struct {
	output    io.Writer
	levelVar  *slog.LevelVar
	format    string
	addSource bool
	enrich    bool
	rotator   *lumberjack.Logger
	attrs     []slog.Attr
	err       error
}

// RotateOption 配置 lumberjack 轮转。
type RotateOption func(*lumberjack.Logger)

// RotateMaxSizeMB 单个文件最大 MB，默认 100。
func RotateMaxSizeMB(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxSize = n }
}

// RotateMaxBackups 保留的旧文件数，默认 7。
func RotateMaxBackups(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxBackups = n }
}

// RotateMaxAgeDays 旧文件保留天数，默认 30。
func RotateMaxAgeDays(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxAge = n }
}

// RotateCompress 是否 gzip 压缩旧文件，默认压缩。
func RotateCompress(enable bool) RotateOption {
	return func(l *lumberjack.Logger) { l.Compress = enable }
}

// New 创建构建器：stderr、info、text、启用 enrich。
func New() *Builder {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		levelVar: lv,
		format:   "text",
		enrich:   true,
	}
}

// SetOutput 设置输出，默认 os.Stderr。设置轮转后该项被忽略。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w == nil {
		b.err = errors.New("xlog: nil output")
		return b
	}
	b.output = w
	return b
}

// SetLevel 设置日志级别。
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 按名字设置级别，名字非法时 Build 返回错误。
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 支持 text 与 json，空值使用 text。
func (b *Builder) SetFormat(format string) *Builder {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = f
	default:
		b.err = fmt.Errorf("xlog: unknown format %q", format)
	}
	return b
}

// SetAddSource 是否记录调用位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 ctx 补充 request_id、user_id 等字段，默认开启。
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enrich = enable
	return b
}

// SetAttrs 为每条日志添加固定属性，如 service、version。
func (b *Builder) SetAttrs(attrs ...slog.Attr) *Builder {
	b.attrs = append(b.attrs, attrs...)
	return b
}

// SetRotation 输出到 filename 并按大小轮转，覆盖 SetOutput。
func (b *Builder) SetRotation(filename string, opts ...RotateOption) *Builder {
	if strings.TrimSpace(filename) == "" {
		b.err = errors.New("xlog: empty rotation filename")
		return b
	}
	r := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	b.rotator = r
	b.output = r
	return b
}

// Build 返回 Logger 和清理函数，清理函数关闭轮转文件。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}
	opts := &slog.HandlerOptions{Level: b.levelVar, AddSource: b.addSource}

	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}
	if len(b.attrs) > 0 {
		handler = handler.WithAttrs(b.attrs)
	}
	if b.enrich {
		eh, err := NewEnrichHandler(handler)
		if err != nil {
			return nil, nil, err
		}
		handler = eh
	}

	cleanup := func() error { return nil }
	if b.rotator != nil {
		cleanup = b.rotator.Close
	}
	return &xlogger{handler: handler, levelVar: b.levelVar, addSource: b.addSource}, cleanup, nil
}
