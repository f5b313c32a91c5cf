package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// ReloadFunc 每次重载后回调，err 非 nil 表示重载失败且旧配置仍然生效。
type ReloadFunc func(s *Source, err error)

// WatchOption 配置 Watcher。
type WatchOption func(*Watcher)

// WithDebounce 防抖时间，窗口内的多次变更只触发一次重载，默认 100ms。
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher 监视配置文件并自动重载。
type Watcher struct {
	src      *Source
	fs       *fsnotify.Watcher
	onReload ReloadFunc
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	// pending 等待中的重载回调，Run 返回前全部结束
	pending sync.WaitGroup
}

// Watch 创建 Watcher，调用 Run 开始监视。
func (s *Source) Watch(onReload ReloadFunc, opts ...WatchOption) (*Watcher, error) {
	if s.path == "" {
		return nil, ErrNotFileBacked
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := fw.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xconf: watch %s: %w", dir, err), fw.Close())
	}

	w := &Watcher{src: s, fs: fw, onReload: onReload, debounce: defaultDebounce}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run 处理文件事件直到 ctx 取消，返回前关闭底层 watcher。
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	name := filepath.Base(w.src.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) == name && ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if w.onReload != nil {
				w.onReload(w.src, fmt.Errorf("xconf: watch: %w", err))
			}
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil && w.timer.Stop() {
		// 上一个定时器未触发，不会再执行回调
		w.pending.Done()
	}
	w.pending.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.pending.Done()
		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		err := w.src.Reload()
		if w.onReload != nil {
			w.onReload(w.src, err)
		}
	})
}

func (w *Watcher) close() {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil && w.timer.Stop() {
		w.pending.Done()
	}
	w.timer = nil
	w.mu.Unlock()

	w.pending.Wait()
	_ = w.fs.Close()
}
