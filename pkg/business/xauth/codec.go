package xauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType 区分 access 和 refresh token。
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Payload token 载荷。
type Payload struct {
	UserID    string    `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	JTI       string    `json:"jti"`
	// ExpiresAt Unix 秒。
	ExpiresAt int64 `json:"exp"`
}

// Expiry 返回过期时间。
func (p *Payload) Expiry() time.Time {
	return time.Unix(p.ExpiresAt, 0)
}

// CodecOption 配置 Codec。
type CodecOption func(*Codec)

// WithCodecClock 替换时钟，测试用。
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec 使用 HS256 签发和校验 token。
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec 创建 Codec，secret 不能为空。
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret: bytes.Clone(secret),
		now:    time.Now,
		parser: jwt.NewParser(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Sign 签发 token。
func (c *Codec) Sign(p Payload) (string, error) {
	claims := jwt.MapClaims{
		"user_id":    p.UserID,
		"token_type": string(p.TokenType),
		"jti":        p.JTI,
		"exp":        p.ExpiresAt,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("xauth: sign token: %w", err)
	}
	return s, nil
}

// Verify 依次校验签名、载荷、类型、过期，遇到第一个失败即返回 *AuthError。
//
// 过期由 Codec 自己的时钟判断，不使用 jwt 库内置的 exp 校验，
// 保证签名有效但类型错误的 token 总是报告 wrong_token_type。
func (c *Codec) Verify(token string, want TokenType) (*Payload, error) {
	if token == "" {
		return nil, newAuthError(ReasonMissingToken, nil)
	}
	if err := c.verifySignature(token); err != nil {
		return nil, newAuthError(ReasonInvalidSignature, err)
	}

	p, err := c.decodePayload(token)
	if err != nil {
		return nil, newAuthError(ReasonMalformedPayload, err)
	}
	if p.TokenType != want {
		return nil, newAuthError(ReasonWrongTokenType,
			fmt.Errorf("want %q, got %q", want, p.TokenType))
	}
	if c.now().Unix() >= p.ExpiresAt {
		return nil, newAuthError(ReasonTokenExpired, nil)
	}
	return p, nil
}

type jwtHeader struct {
	Alg string `json:"alg"`
}

func (c *Codec) verifySignature(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("token has %d segments", len(parts))
	}

	raw, err := c.parser.DecodeSegment(parts[0])
	if err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	var h jwtHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	if h.Alg != jwt.SigningMethodHS256.Alg() {
		return fmt.Errorf("unexpected alg %q", h.Alg)
	}

	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret)
}

// wirePayload user_id 兼容字符串和数字两种写法。
type wirePayload struct {
	UserID    json.RawMessage `json:"user_id"`
	TokenType string          `json:"token_type"`
	JTI       string          `json:"jti"`
	Exp       json.Number     `json:"exp"`
}

func (c *Codec) decodePayload(token string) (*Payload, error) {
	seg := token[strings.IndexByte(token, '.')+1 : strings.LastIndexByte(token, '.')]
	raw, err := c.parser.DecodeSegment(seg)
	if err != nil {
		return nil, err
	}
	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	userID, err := decodeUserID(w.UserID)
	if err != nil {
		return nil, err
	}
	exp, err := decodeExp(w.Exp)
	if err != nil {
		return nil, err
	}
	return &Payload{
		UserID:    userID,
		TokenType: TokenType(w.TokenType),
		JTI:       w.JTI,
		ExpiresAt: exp,
	}, nil
}

func decodeUserID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing user_id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("empty user_id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("user_id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("user_id %q is not an integer", n)
	}
	return n.String(), nil
}

func decodeExp(n json.Number) (int64, error) {
	if n == "" {
		return 0, errors.New("missing exp")
	}
	if v, err := n.Int64(); err == nil {
		if v <= 0 {
			return 0, fmt.Errorf("exp %d out of range", v)
		}
		return v, nil
	}
	f, err := n.Float64()
	// float64(math.MaxInt64) 即 2^63，已超出 int64
	if err != nil || f <= 0 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("exp %q out of range", n)
	}
	return int64(f), nil
}
