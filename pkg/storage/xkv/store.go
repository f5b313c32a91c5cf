package xkv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound key 不存在或已过期。
	ErrNotFound = errors.New("xkv: key not found")

	// ErrEmptyKey key 为空字符串。
	ErrEmptyKey = errors.New("xkv: empty key")

	// ErrNegativeTTL ttl 为负数。
	ErrNegativeTTL = errors.New("xkv: negative ttl")

	// ErrNilClient 后端客户端为 nil。
	ErrNilClient = errors.New("xkv: nil client")

	// ErrClosed Store 已关闭。
	ErrClosed = errors.New("xkv: store closed")

	// ErrCircuitOpen 熔断器处于打开状态，请求未发往后端。
	ErrCircuitOpen = errors.New("xkv: circuit open")
)

// Store 持久化 KV 存储。实现必须并发安全。
type Store interface {
	// Get 读取 key，不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) ([]byte, error)

	// Put 写入 key，ttl 为 0 表示不过期。
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除 key，key 不存在不返回错误。
	Delete(ctx context.Context, key string) error

	// List 返回以 prefix 开头的所有 key，顺序不保证。
	List(ctx context.Context, prefix string) ([]string, error)
}

func checkPut(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl < 0 {
		return ErrNegativeTTL
	}
	return nil
}

// IsNotFound 报告 err 是否表示 key 不存在。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
