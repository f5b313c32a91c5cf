package xauth

import (
	"net/http"
	"strings"
)

// HeaderAuthorization 携带 token 的请求头。
const HeaderAuthorization = "Authorization"

// TokenFromRequest 从 Authorization 头取出 token。
// 只接受 Bearer 和 Jwt 两种 scheme（不区分大小写），其他情况返回 false。
func TokenFromRequest(r *http.Request) (string, bool) {
	return TokenFromHeader(r.Header.Get(HeaderAuthorization))
}

// TokenFromHeader 解析 "<scheme> <token>" 格式的头部值。
func TokenFromHeader(v string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	if !strings.EqualFold(scheme, "bearer") && !strings.EqualFold(scheme, "jwt") {
		return "", false
	}
	return token, true
}

// PathContainsPrivate 路径包含 /private/ 段即视为私有路由。
func PathContainsPrivate(r *http.Request) bool {
	return strings.Contains(r.URL.Path, "/private/")
}
