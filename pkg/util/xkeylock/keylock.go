package xkeylock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Map 按 key 提供互斥，零值不可用，必须通过 New 创建。
type Map struct {
	shards []shard
	mask   uint64
	opts   options
	active atomic.Int64
	closed atomic.Bool
	done   chan struct{}
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry 的 sem 容量为 1：写入成功即持锁，读出即释放。
// refs 统计持有者与等待者，归零时从分片中删除。
type entry struct {
	sem  chan struct{}
	refs int32
}

// Guard 表示一次成功的加锁。
type Guard struct {
	m        *Map
	key      string
	e        *entry
	released atomic.Bool
}

// New 创建 Map。
func New(opts ...Option) (*Map, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	m := &Map{
		shards: make([]shard, o.shards),
		mask:   uint64(o.shards - 1),
		opts:   o,
		done:   make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*entry)
	}
	return m, nil
}

func (m *Map) shardOf(key string) *shard {
	return &m.shards[xxhash.Sum64String(key)&m.mask]
}

func (m *Map) ref(key string) (*entry, error) {
	s := m.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.closed.Load() {
		return nil, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok {
		if m.opts.maxKeys > 0 && m.active.Load() >= int64(m.opts.maxKeys) {
			return nil, ErrTooManyKeys
		}
		m.active.Add(1)
		e = &entry{sem: make(chan struct{}, 1)}
		s.entries[key] = e
	}
	e.refs++
	return e, nil
}

func (m *Map) unref(key string, e *entry) {
	s := m.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(s.entries, key)
		m.active.Add(-1)
	}
}

// Lock 阻塞直到获得 key 的锁、ctx 结束或 Map 关闭。
func (m *Map) Lock(ctx context.Context, key string) (*Guard, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.ref(key)
	if err != nil {
		return nil, err
	}

	select {
	case e.sem <- struct{}{}:
		return &Guard{m: m, key: key, e: e}, nil
	case <-ctx.Done():
		m.unref(key, e)
		return nil, ctx.Err()
	case <-m.done:
		m.unref(key, e)
		return nil, ErrClosed
	}
}

// TryLock 非阻塞加锁，锁被占用时返回 (nil, false, nil)。
func (m *Map) TryLock(key string) (*Guard, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	e, err := m.ref(key)
	if err != nil {
		return nil, false, err
	}

	select {
	case e.sem <- struct{}{}:
		return &Guard{m: m, key: key, e: e}, true, nil
	default:
		m.unref(key, e)
		return nil, false, nil
	}
}

// Len 返回当前活跃 key 数。
func (m *Map) Len() int {
	return int(max(m.active.Load(), 0))
}

// Close 拒绝新的加锁并唤醒所有等待者，重复调用返回 ErrClosed。
func (m *Map) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(m.done)
	return nil
}

// Unlock 释放锁，只有第一次调用生效。
func (g *Guard) Unlock() error {
	if !g.released.CompareAndSwap(false, true) {
		return ErrNotHeld
	}
	<-g.e.sem
	g.m.unref(g.key, g.e)
	return nil
}

// Key 返回加锁的 key。
func (g *Guard) Key() string {
	return g.key
}
