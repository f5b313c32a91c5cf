// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: 基于 redsync 的跨实例锁，多实例部署时串行化同一限流 key
package distributed
