// Package xdlock 提供基于 Redis 的跨实例互斥锁（redsync）。
//
// 多副本部署时，同一 scope key 的限流 actor 可能同时在多个进程中激活。
// xkeylock 只保证进程内串行，xdlock 把临界区扩展到整个集群：
//
//	locker, _ := xdlock.NewRedis([]redis.UniversalClient{client}, xdlock.WithExpiry(2*time.Second))
//	h, err := locker.Lock(ctx, "ratelimit:api:user:42")
//	if err != nil {
//	    return err
//	}
//	defer h.Unlock(context.WithoutCancel(ctx))
//
// 单节点为普通 Redis 锁，多节点使用 Redlock（过半成功）。
package xdlock
