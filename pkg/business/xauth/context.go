package xauth

import "context"

// =============================================================================
// Context 集成
// =============================================================================

// Verification 一次 token 校验的结果。
// Present 为 false 表示请求没有携带 token，此时 Payload 和 Err 均为空。
type Verification struct {
	Present bool
	Payload *Payload
	Err     error
}

// OK 报告校验是否通过。
func (v *Verification) OK() bool {
	return v != nil && v.Present && v.Err == nil && v.Payload != nil
}

type verificationKey struct{}

// WithVerification 把校验结果放入 ctx，Gate 会直接复用。
func WithVerification(ctx context.Context, v *Verification) context.Context {
	return context.WithValue(ctx, verificationKey{}, v)
}

// VerificationFrom 取出 ctx 中的校验结果。
func VerificationFrom(ctx context.Context) (*Verification, bool) {
	v, ok := ctx.Value(verificationKey{}).(*Verification)
	return v, ok && v != nil
}

type payloadKey struct{}

// PayloadFrom 返回 Gate 认证通过后存入的载荷。
func PayloadFrom(ctx context.Context) (*Payload, bool) {
	p, ok := ctx.Value(payloadKey{}).(*Payload)
	return p, ok && p != nil
}

func withPayload(ctx context.Context, p *Payload) context.Context {
	return context.WithValue(ctx, payloadKey{}, p)
}
