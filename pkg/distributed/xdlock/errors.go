package xdlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redsync/redsync/v4"
)

var (
	// ErrNilClient 未提供 Redis 客户端或其中存在 nil。
	ErrNilClient = errors.New("xdlock: nil redis client")

	// ErrEmptyKey 锁 key 为空。
	ErrEmptyKey = errors.New("xdlock: empty key")

	// ErrLockHeld 锁被其他持有者占用且重试耗尽。
	ErrLockHeld = errors.New("xdlock: lock held by another owner")

	// ErrLockFailed 未能在过半节点上加锁。
	ErrLockFailed = errors.New("xdlock: lock failed")

	// ErrNotLocked 释放时锁已过期或不再属于当前持有者。
	ErrNotLocked = errors.New("xdlock: not locked")
)

func wrapRedsync(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	}
	if errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	}
	if errors.Is(err, redsync.ErrFailed) {
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	return err
}
