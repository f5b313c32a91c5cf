package xctx

import (
	"context"
	"errors"
)

// contextKey 为包私有类型，避免与其他包的 key 冲突。
type contextKey string

const (
	keyRequestID = contextKey("xctx:request_id")
	keyUserID    = contextKey("xctx:user_id")
	keyClientIP  = contextKey("xctx:client_ip")
)

// 日志属性名
const (
	KeyRequestID = "request_id"
	KeyUserID    = "user_id"
	KeyClientIP  = "client_ip"

	fieldCount = 3
)

var (
	// ErrNilContext 传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")

	// ErrMissingUserID context 中没有 user_id。
	ErrMissingUserID = errors.New("xctx: missing user_id")
)

func withString(ctx context.Context, key contextKey, v string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, key, v), nil
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithRequestID 注入 request ID。
func WithRequestID(ctx context.Context, id string) (context.Context, error) {
	return withString(ctx, keyRequestID, id)
}

// RequestID 返回 request ID，不存在返回空字符串。
func RequestID(ctx context.Context) string {
	return stringValue(ctx, keyRequestID)
}

// WithUserID 注入已认证用户 ID。
func WithUserID(ctx context.Context, userID string) (context.Context, error) {
	return withString(ctx, keyUserID, userID)
}

// UserID 返回已认证用户 ID，未认证返回空字符串。
func UserID(ctx context.Context) string {
	return stringValue(ctx, keyUserID)
}

// RequireUserID 与 UserID 相同，但值缺失时返回 ErrMissingUserID。
func RequireUserID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := UserID(ctx)
	if v == "" {
		return "", ErrMissingUserID
	}
	return v, nil
}

// WithClientIP 注入客户端 IP。
func WithClientIP(ctx context.Context, ip string) (context.Context, error) {
	return withString(ctx, keyClientIP, ip)
}

// ClientIP 返回客户端 IP，不存在返回空字符串。
func ClientIP(ctx context.Context) string {
	return stringValue(ctx, keyClientIP)
}
