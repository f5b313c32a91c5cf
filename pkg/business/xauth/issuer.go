package xauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenPair 登录时签发的一对 token。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IssuerOption 配置 Issuer。
type IssuerOption func(*Issuer)

// WithAccessTTL access token 有效期，默认 15 分钟。
func WithAccessTTL(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTTL = d
	}
}

// WithRefreshTTL refresh token 有效期，默认 7 天。
func WithRefreshTTL(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.refreshTTL = d
	}
}

// WithRefreshStore 启用 refresh token 白名单。未配置时只校验签名和有效期。
func WithRefreshStore(s *RefreshStore) IssuerOption {
	return func(i *Issuer) {
		i.store = s
	}
}

// WithIDGenerator 替换 jti 生成方式，默认 UUIDv4。
func WithIDGenerator(fn func() string) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.newID = fn
		}
	}
}

// Issuer 签发和刷新 token。
type Issuer struct {
	codec      *Codec
	store      *RefreshStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	newID      func() string
	group      singleflight.Group
}

// NewIssuer 创建 Issuer。
func NewIssuer(codec *Codec, opts ...IssuerOption) (*Issuer, error) {
	if codec == nil {
		return nil, ErrNilCodec
	}
	i := &Issuer{
		codec:      codec,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	if i.accessTTL <= 0 || i.refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: access=%s refresh=%s", ErrInvalidTTL, i.accessTTL, i.refreshTTL)
	}
	return i, nil
}

// Store 返回配置的白名单，可能为 nil。
func (i *Issuer) Store() *RefreshStore {
	return i.store
}

// IssuePair 为用户签发一对 token，配置了白名单时记录 refresh token 和设备信息。
func (i *Issuer) IssuePair(ctx context.Context, userID string, device DeviceInfo) (*TokenPair, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	now := i.codec.now()

	access, err := i.sign(userID, TokenAccess, now.Add(i.accessTTL))
	if err != nil {
		return nil, err
	}
	refreshJTI := i.newID()
	refreshExp := now.Add(i.refreshTTL)
	refresh, err := i.codec.Sign(Payload{
		UserID:    userID,
		TokenType: TokenRefresh,
		JTI:       refreshJTI,
		ExpiresAt: refreshExp.Unix(),
	})
	if err != nil {
		return nil, err
	}

	if i.store != nil {
		device.CreatedAt = now.Unix()
		device.ExpiresAt = refreshExp.Unix()
		if err := i.store.Save(ctx, userID, refreshJTI, device); err != nil {
			return nil, err
		}
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh 用 refresh token 换取新的 access token，refresh token 本身不轮换。
//
// 同一个 refresh token 的并发请求合并为一次校验和签发。
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (string, error) {
	v, err, _ := i.group.Do(refreshToken, func() (any, error) {
		return i.refresh(context.WithoutCancel(ctx), refreshToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (i *Issuer) refresh(ctx context.Context, refreshToken string) (string, error) {
	p, err := i.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	if i.store != nil {
		ok, err := i.store.Exists(ctx, p.UserID, p.JTI)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", newAuthError(ReasonTokenRevoked, nil)
		}
	}
	return i.sign(p.UserID, TokenAccess, i.codec.now().Add(i.accessTTL))
}

// Logout 吊销一个 refresh token。token 必须签名有效，已过期也可以吊销。
func (i *Issuer) Logout(ctx context.Context, refreshToken string) error {
	p, err := i.codec.Verify(refreshToken, TokenRefresh)
	if err != nil && ReasonOf(err) != ReasonTokenExpired {
		return err
	}
	if i.store == nil {
		return nil
	}
	if p == nil {
		// 过期 token 的载荷已通过校验，重新解码取出 jti
		if p, err = i.codec.decodePayload(refreshToken); err != nil {
			return newAuthError(ReasonMalformedPayload, err)
		}
	}
	return i.store.Delete(ctx, p.UserID, p.JTI)
}

func (i *Issuer) sign(userID string, typ TokenType, exp time.Time) (string, error) {
	return i.codec.Sign(Payload{
		UserID:    userID,
		TokenType: typ,
		JTI:       i.newID(),
		ExpiresAt: exp.Unix(),
	})
}
