package xkeylock

import "errors"

var (
	// ErrClosed Map 已关闭。
	ErrClosed = errors.New("xkeylock: closed")

	// ErrNotHeld Guard 已释放，重复 Unlock 时返回。
	ErrNotHeld = errors.New("xkeylock: lock not held")

	// ErrTooManyKeys 活跃 key 数达到 WithMaxKeys 上限。
	ErrTooManyKeys = errors.New("xkeylock: too many keys")

	// ErrEmptyKey key 为空字符串。
	ErrEmptyKey = errors.New("xkeylock: empty key")

	// ErrInvalidShards 分片数不是 2 的幂或超出上限。
	ErrInvalidShards = errors.New("xkeylock: invalid shard count")
)
