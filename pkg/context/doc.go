// Package context 提供请求上下文相关的子包。
//
// 子包列表：
//   - xctx: 在 context.Context 中传递 request_id、user_id、client_ip，并导出为日志属性
//
// 所有请求级信息通过 context.Context 传递，不使用全局变量。
package context
