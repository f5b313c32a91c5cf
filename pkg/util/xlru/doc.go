// Package xlru 是带 TTL 的并发安全 LRU，封装 hashicorp/golang-lru/v2/expirable。
//
// 限流 Registry 用它保存活跃的 actor：Set 刷新 TTL，空闲超过 TTL 或容量
// 淘汰即视为 actor 失活，下次访问从持久化存储重新加载。
//
// Close 会停止 expirable 的后台清理 goroutine，使用方必须调用。
package xlru
