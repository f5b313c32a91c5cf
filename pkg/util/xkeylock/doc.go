// Package xkeylock 提供按 key 串行化的进程内互斥。
//
// 限流 actor 以 scope key 为粒度持有状态，同一 key 的读改写必须线性化，
// 不同 key 互不阻塞。Map 以 xxhash 对 key 分片，每个 key 对应一个容量为 1 的
// channel 作为信号量，引用计数归零时条目被回收，因此空闲 key 不占内存。
//
// 基本用法：
//
//	m, err := xkeylock.New()
//	g, err := m.Lock(ctx, "api:user:42")
//	if err != nil {
//	    return err
//	}
//	defer g.Unlock()
//
// 锁不可重入。Close 之后新的 Lock 返回 ErrClosed，阻塞中的 Lock 被唤醒并返回
// ErrClosed，已持有的 Guard 仍可正常 Unlock。
package xkeylock
