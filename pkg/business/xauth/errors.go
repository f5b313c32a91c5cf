package xauth

import (
	"errors"
	"net/http"
)

// Reason 认证失败原因，值是对外稳定的协议。
type Reason string

const (
	ReasonMissingToken     Reason = "missing_token"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonMalformedPayload Reason = "malformed_payload"
	ReasonWrongTokenType   Reason = "wrong_token_type"
	ReasonTokenExpired     Reason = "token_expired"
	ReasonTokenRevoked     Reason = "token_revoked"
)

// =============================================================================
// 认证错误
// =============================================================================

var (
	ErrMissingToken     = errors.New("xauth: missing token")
	ErrInvalidSignature = errors.New("xauth: invalid signature")
	ErrMalformedPayload = errors.New("xauth: malformed payload")
	ErrWrongTokenType   = errors.New("xauth: wrong token type")
	ErrTokenExpired     = errors.New("xauth: token expired")
	ErrTokenRevoked     = errors.New("xauth: token revoked")
)

// =============================================================================
// 配置错误
// =============================================================================

var (
	// ErrEmptySecret 签名密钥为空。
	ErrEmptySecret = errors.New("xauth: empty secret")

	// ErrNilCodec 传入的 Codec 为 nil。
	ErrNilCodec = errors.New("xauth: nil codec")

	// ErrNilStore 传入的 KV Store 为 nil。
	ErrNilStore = errors.New("xauth: nil store")

	// ErrEmptyUserID 签发 token 时未提供用户 ID。
	ErrEmptyUserID = errors.New("xauth: empty user id")

	// ErrInvalidTTL token 有效期不是正数。
	ErrInvalidTTL = errors.New("xauth: invalid ttl")

	// ErrSessionNotFound 白名单中没有该 refresh token。
	ErrSessionNotFound = errors.New("xauth: session not found")
)

var reasonSentinels = map[Reason]error{
	ReasonMissingToken:     ErrMissingToken,
	ReasonInvalidSignature: ErrInvalidSignature,
	ReasonMalformedPayload: ErrMalformedPayload,
	ReasonWrongTokenType:   ErrWrongTokenType,
	ReasonTokenExpired:     ErrTokenExpired,
	ReasonTokenRevoked:     ErrTokenRevoked,
}

var reasonMessages = map[Reason]string{
	ReasonMissingToken:     "No authorization token provided",
	ReasonInvalidSignature: "Invalid JWT signature",
	ReasonMalformedPayload: "Invalid token payload",
	ReasonWrongTokenType:   "Not correct token type",
	ReasonTokenExpired:     "Token expired",
	ReasonTokenRevoked:     "Refresh token revoked",
}

// AuthError 认证失败，Reason 决定对外的 reason 码。
type AuthError struct {
	Reason Reason
	// Err 底层原因，可为 nil。
	Err error
}

func newAuthError(reason Reason, cause error) *AuthError {
	return &AuthError{Reason: reason, Err: cause}
}

// Error 返回原因对应的哨兵错误描述，附带底层错误。
func (e *AuthError) Error() string {
	s := reasonSentinels[e.Reason]
	if s == nil {
		return "xauth: " + string(e.Reason)
	}
	if e.Err != nil {
		return s.Error() + ": " + e.Err.Error()
	}
	return s.Error()
}

// Unwrap 返回底层错误。
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrTokenExpired) 等按 Reason 匹配。
func (e *AuthError) Is(target error) bool {
	s, ok := reasonSentinels[e.Reason]
	return ok && target == s
}

// Message 面向客户端的提示。
func (e *AuthError) Message() string {
	if m, ok := reasonMessages[e.Reason]; ok {
		return m
	}
	return http.StatusText(http.StatusUnauthorized)
}

// ReasonOf 提取 err 中的 Reason，不是认证错误时返回空串。
func ReasonOf(err error) Reason {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
