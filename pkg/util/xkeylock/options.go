package xkeylock

import "fmt"

const (
	defaultShards = 32
	maxShards     = 1 << 16
)

// Option 配置 Map。
type Option func(*options)

type options struct {
	shards  int
	maxKeys int
}

func defaultOptions() options {
	return options{shards: defaultShards}
}

// WithShards 设置分片数，必须是 2 的幂，默认 32。
func WithShards(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// WithMaxKeys 限制同时活跃（持有或等待）的 key 数量，n <= 0 表示不限制。
func WithMaxKeys(n int) Option {
	if n < 0 {
		n = 0
	}
	return func(o *options) {
		o.maxKeys = n
	}
}

func (o *options) validate() error {
	n := o.shards
	if n <= 0 || n > maxShards || n&(n-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, n)
	}
	return nil
}
