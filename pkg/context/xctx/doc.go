// Package xctx 在 context 中存取请求级身份信息。
//
// 字段：
//
//   - request_id：请求标识，由服务入口生成或透传 X-Request-ID
//   - user_id：通过 access token 校验的用户 ID，未认证时为空
//   - client_ip：按代理头优先级解析出的客户端 IP
//
// xctx 是纯存取层，不做值校验。需要强制存在时使用 RequireUserID。
// AppendAttrs 把非空字段追加为 slog 属性，供 xlog 的 EnrichHandler 使用。
package xctx
