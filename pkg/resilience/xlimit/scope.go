package xlimit

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownIP 无法识别客户端 IP 时共用的桶。
const UnknownIP = "unknown"

// 客户端 IP 头，按信任优先级排列。
const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderRealIP         = "X-Real-IP"

	// HeaderInternalRequest 值为 "true" 时跳过限流。
	HeaderInternalRequest = "X-Internal-Request"
)

var ipHeaders = []string{HeaderCFConnectingIP, HeaderForwardedFor, HeaderRealIP}

// ScopeKey 生成 "{scope}:user:{id}" 或 "{scope}:ip:{ip}"，userID 优先。
func ScopeKey(scope, userID, clientIP string) string {
	if userID != "" {
		return scope + ":user:" + userID
	}
	if clientIP == "" {
		clientIP = UnknownIP
	}
	return scope + ":ip:" + clientIP
}

// ClientIP 按 CF-Connecting-IP、X-Forwarded-For 首项、X-Real-IP 的顺序取客户端 IP，
// 都没有时返回 UnknownIP。
func ClientIP(r *http.Request) string {
	if ip := headerIP(r); ip != "" {
		return ip
	}
	return UnknownIP
}

// ClientIPWithRemote 与 ClientIP 相同，但在没有代理头时使用 RemoteAddr。
func ClientIPWithRemote(r *http.Request) string {
	if ip := headerIP(r); ip != "" {
		return ip
	}
	if addr, ok := remoteAddr(r); ok {
		return addr.String()
	}
	return UnknownIP
}

// maxIPHeaderLen 超长的头值不解析，IPv6 带 zone 也远短于此。
const maxIPHeaderLen = 64

// headerIP 返回第一个能解析为 IP 的头值，规范化后作为桶名；无法解析的头被跳过。
func headerIP(r *http.Request) string {
	for _, h := range ipHeaders {
		v := r.Header.Get(h)
		if h == HeaderForwardedFor {
			v, _, _ = strings.Cut(v, ",")
		}
		if addr, ok := parseIP(v); ok {
			return addr.String()
		}
	}
	return ""
}

func parseIP(v string) (netip.Addr, bool) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxIPHeaderLen {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(v)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

type internalKey struct{}

// WithInternal 标记 ctx 为内部调用，带此标记的请求跳过限流。
func WithInternal(ctx context.Context) context.Context {
	return context.WithValue(ctx, internalKey{}, true)
}

// IsInternal 报告 ctx 是否带内部调用标记。
func IsInternal(ctx context.Context) bool {
	v, _ := ctx.Value(internalKey{}).(bool)
	return v
}
