// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xkv: 持久化 KV 抽象，Redis、etcd、内存三种后端，可选熔断包装
package storage
