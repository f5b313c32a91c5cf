package xctx

import (
	"context"
	"log/slog"
)

// AppendAttrs 将 context 中的非空字段追加到 attrs。
func AppendAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := RequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyRequestID, v))
	}
	if v := UserID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyUserID, v))
	}
	if v := ClientIP(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyClientIP, v))
	}
	return attrs
}

// Attrs 返回 context 中的非空字段，全部为空时返回 nil。
func Attrs(ctx context.Context) []slog.Attr {
	attrs := AppendAttrs(make([]slog.Attr, 0, fieldCount), ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
