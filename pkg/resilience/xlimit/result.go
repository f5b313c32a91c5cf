package xlimit

import (
	"net/http"
	"strconv"
)

// 响应头
const (
	HeaderRetryAfter          = "Retry-After"
	HeaderRateLimitLimit      = "X-RateLimit-Limit"
	HeaderRateLimitRetryAfter = "X-RateLimit-Retry-After"
)

// Result 一次检查的结论。
type Result struct {
	Allowed      bool  `json:"allowed"`
	RetryAfterMs int64 `json:"retryAfterMs"`
	LimitMs      int64 `json:"limitMs"`
}

// RetryAfterSeconds 向上取整到秒，亚秒等待不会变成 0。
func (r *Result) RetryAfterSeconds() int64 {
	if r.RetryAfterMs <= 0 {
		return 0
	}
	return (r.RetryAfterMs + 999) / 1000
}

// SetHeaders 写入限流响应头，拒绝时额外写入 Retry-After。
func (r *Result) SetHeaders(h http.Header) {
	h.Set(HeaderRateLimitLimit, strconv.FormatInt(r.LimitMs, 10))
	if r.Allowed {
		h.Set(HeaderRateLimitRetryAfter, "0")
		return
	}
	h.Set(HeaderRateLimitRetryAfter, strconv.FormatInt(r.RetryAfterMs, 10))
	h.Set(HeaderRetryAfter, strconv.FormatInt(r.RetryAfterSeconds(), 10))
}
