package xlru

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const maxSize = 1 << 24

// Config 缓存配置。TTL 为 0 表示条目不过期。
type Config struct {
	Size int
	TTL  time.Duration
}

// Cache 带 TTL 的 LRU，必须通过 New 创建。Close 后读返回零值，写被忽略。
type Cache[K comparable, V any] struct {
	lru       *expirable.LRU[K, V]
	closed    atomic.Bool
	closeOnce sync.Once
}

// New 创建缓存。onEvict 可为 nil，回调在底层锁内同步执行，不得回调 Cache 自身。
func New[K comparable, V any](cfg Config, onEvict func(K, V)) (*Cache[K, V], error) {
	if cfg.Size <= 0 || cfg.Size > maxSize {
		return nil, ErrInvalidSize
	}
	if cfg.TTL < 0 {
		return nil, ErrInvalidTTL
	}
	return &Cache[K, V]{lru: expirable.NewLRU(cfg.Size, onEvict, cfg.TTL)}, nil
}

// Get 返回 key 对应的值，并将其标记为最近使用。过期的条目视为不存在。
func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	if c.closed.Load() {
		return value, false
	}
	return c.lru.Get(key)
}

// Set 写入并刷新 TTL，返回是否触发了容量淘汰。
func (c *Cache[K, V]) Set(key K, value V) bool {
	if c.closed.Load() {
		return false
	}
	return c.lru.Add(key, value)
}

// Delete 删除 key，返回 key 是否存在。
func (c *Cache[K, V]) Delete(key K) bool {
	if c.closed.Load() {
		return false
	}
	return c.lru.Remove(key)
}

// Len 可能包含已过期但尚未清理的条目。
func (c *Cache[K, V]) Len() int {
	if c.closed.Load() {
		return 0
	}
	return c.lru.Len()
}

// Close 清空缓存并停止后台清理 goroutine，可重复调用。
func (c *Cache[K, V]) Close() {
	c.closed.Store(true)
	c.closeOnce.Do(func() {
		c.lru.Purge()
		stopCleanup(c.lru)
	})
}

// stopCleanup 关闭 expirable.LRU 未导出的 done 通道。
// golang-lru v2.0.7 在 TTL > 0 时启动的清理 goroutine 没有公开的停止方法。
// 升级依赖时需确认字段仍为 done chan struct{}，否则返回 false。
func stopCleanup(lru any) (stopped bool) {
	defer func() {
		if r := recover(); r != nil {
			stopped = false
		}
	}()
	v := reflect.ValueOf(lru)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}
	f := v.Elem().FieldByName("done")
	if !f.IsValid() || f.IsNil() || f.Type() != reflect.TypeOf(make(chan struct{})) {
		return false
	}
	done := *(*chan struct{})(unsafe.Pointer(f.UnsafeAddr())) //nolint:gosec // 访问上游未导出字段
	close(done)
	return true
}
