// Package xlimit 实现按身份的固定间隔限流。
//
// 每个 scope key（如 "api:user:42"、"auth:ip:203.0.113.7"）对应一个逻辑 actor，
// actor 只保存一个值 next_allowed_time（毫秒）。一次检查：
//
//	grace    = min(GracePeriodMs, MillisecondsPerRequest)
//	earliest = next_allowed_time - grace
//	allowed  = now >= earliest
//	allowed 时 next_allowed_time = max(now, next_allowed_time) + MillisecondsPerRequest
//	retry    = allowed ? 0 : earliest - now
//
// 拒绝不修改状态。同一 key 的检查通过 xkeylock 串行化，可选地再经 xdlock
// 扩展到多实例。状态首次访问时从 xkv.Store 惰性加载，放行后在临界区内写回。
//
// # 故障语义
//
// 限流是保护层而非正确性依赖：读取失败按 0 处理，写入失败记录日志后忽略，
// 中间件在检查出错或超时时放行请求。认证失败的处理在 xauth 中，二者不共享
// 错误处理。
//
// # HTTP
//
// HTTPMiddleware 跳过 OPTIONS 和内部请求，拒绝时返回 429：
//
//	{"error":"TooManyRequestsException","message":"Rate limit exceeded. Please try again later.","status":429,...}
//
// 并设置 Retry-After（秒，向上取整）、X-RateLimit-Limit（毫秒）、
// X-RateLimit-Retry-After（毫秒）。
package xlimit
