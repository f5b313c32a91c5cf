// Package xauth 提供基于 HS256 JWT 的请求认证。
//
// 组成：
//   - Codec：签发与校验 token，校验顺序固定为签名、载荷、类型、过期。
//   - Resolver：准入前软校验 access token，只识别身份，从不拒绝请求。
//   - Gate：私有路由的强制认证，失败返回 401 和稳定的 reason 码。
//   - Issuer：签发 access/refresh token 对，用 refresh token 换取新的 access token。
//   - RefreshStore：refresh token 白名单，按用户列出和吊销会话。
//
// 典型用法：
//
//	codec, _ := xauth.NewCodec(secret)
//	h := xauth.Resolver(codec)(limiter(xauth.Gate(codec)(mux)))
//
// Reason 码：
//
//	missing_token      未携带 token
//	invalid_signature  签名无效或 token 无法解析
//	malformed_payload  载荷缺少 user_id/exp 或格式错误
//	wrong_token_type   需要 access 却收到 refresh（或相反）
//	token_expired      已过期
//	token_revoked      refresh token 不在白名单中
package xauth
