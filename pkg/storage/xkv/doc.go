// Package xkv 定义限流状态与刷新令牌白名单共用的持久化 KV 抽象。
//
// 接口只有四个操作：Get、Put（可带 TTL）、Delete、List（按前缀列出 key）。
// 提供以下实现：
//
//   - NewRedis：基于 go-redis/v9，List 使用 SCAN MATCH，不阻塞 Redis
//   - NewEtcd：基于 etcd clientv3，TTL 通过租约实现（向上取整到秒）
//   - NewMemory：进程内 map，用于测试和单进程开发环境
//
// WithBreaker 为任意 Store 包一层 gobreaker 熔断器。ErrNotFound 不计入失败，
// 熔断打开期间直接返回 ErrCircuitOpen，上层限流器把它当作存储故障放行请求。
package xkv
