package xauth

import (
	"net/http"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/context/xctx"
)

// Resolver 在限流之前识别请求身份。
//
// 携带的 access token 校验通过时把用户 ID 写入 xctx，限流按用户计；
// 否则按 IP 计。结果总是存入 ctx 供 Gate 复用。Resolver 从不拒绝请求。
func Resolver(codec *Codec) func(http.Handler) http.Handler {
	if codec == nil {
		panic("xauth: Resolver requires a non-nil Codec")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := verify(codec, r)
			ctx := WithVerification(r.Context(), v)
			if v.OK() {
				if uctx, err := xctx.WithUserID(ctx, v.Payload.UserID); err == nil {
					ctx = uctx
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verify(codec *Codec, r *http.Request) *Verification {
	token, ok := TokenFromRequest(r)
	if !ok {
		return &Verification{}
	}
	p, err := codec.Verify(token, TokenAccess)
	return &Verification{Present: true, Payload: p, Err: err}
}
