package xauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/storage/xkv"
)

const (
	defaultRefreshPrefix = "refresh:"
	defaultWriteAttempts = 3
	defaultWriteDelay    = 50 * time.Millisecond
)

// Session 一个有效的 refresh token 及其设备信息。
type Session struct {
	JTI string `json:"jti"`
	DeviceInfo
}

// RefreshStoreOption 配置 RefreshStore。
type RefreshStoreOption func(*RefreshStore)

// WithRefreshPrefix key 前缀，默认 "refresh:"。
func WithRefreshPrefix(p string) RefreshStoreOption {
	return func(s *RefreshStore) {
		s.prefix = p
	}
}

// WithWriteRetry 写入失败的重试次数（含首次）和初始间隔，间隔按指数退避增长。
func WithWriteRetry(attempts uint, delay time.Duration) RefreshStoreOption {
	return func(s *RefreshStore) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if delay >= 0 {
			s.delay = delay
		}
	}
}

// WithStoreClock 替换时钟，测试用。
func WithStoreClock(now func() time.Time) RefreshStoreOption {
	return func(s *RefreshStore) {
		if now != nil {
			s.now = now
		}
	}
}

// RefreshStore refresh token 白名单。
//
// key 为 "{prefix}{userID}:{jti}"，值为 DeviceInfo 的 JSON，
// TTL 为 token 剩余有效期，过期记录由后端自动清理。
type RefreshStore struct {
	kv       xkv.Store
	prefix   string
	attempts uint
	delay    time.Duration
	now      func() time.Time
}

// NewRefreshStore 创建 RefreshStore。
func NewRefreshStore(kv xkv.Store, opts ...RefreshStoreOption) (*RefreshStore, error) {
	if kv == nil {
		return nil, ErrNilStore
	}
	s := &RefreshStore{
		kv:       kv,
		prefix:   defaultRefreshPrefix,
		attempts: defaultWriteAttempts,
		delay:    defaultWriteDelay,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Save 记录一个 refresh token。已过期的 token 不写入。
func (s *RefreshStore) Save(ctx context.Context, userID, jti string, info DeviceInfo) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	ttl := time.Unix(info.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("xauth: encode session: %w", err)
	}
	key := s.key(userID, jti)
	return s.write(ctx, "save", func(ctx context.Context) error {
		return s.kv.Put(ctx, key, raw, ttl)
	})
}

// Get 读取一个 refresh token 的设备信息，不存在时返回 ErrSessionNotFound。
func (s *RefreshStore) Get(ctx context.Context, userID, jti string) (*DeviceInfo, error) {
	raw, err := s.kv.Get(ctx, s.key(userID, jti))
	if xkv.IsNotFound(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("xauth: get session: %w", err)
	}
	var info DeviceInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("xauth: decode session: %w", err)
	}
	return &info, nil
}

// Exists 报告 refresh token 是否仍在白名单中。
func (s *RefreshStore) Exists(ctx context.Context, userID, jti string) (bool, error) {
	_, err := s.Get(ctx, userID, jti)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete 吊销一个 refresh token。
func (s *RefreshStore) Delete(ctx context.Context, userID, jti string) error {
	key := s.key(userID, jti)
	return s.write(ctx, "delete", func(ctx context.Context) error {
		return s.kv.Delete(ctx, key)
	})
}

// RevokeAll 吊销用户的全部 refresh token，返回吊销数量。
func (s *RefreshStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}
	keys, err := s.kv.List(ctx, s.userPrefix(userID))
	if err != nil {
		return 0, fmt.Errorf("xauth: list sessions: %w", err)
	}
	var errs []error
	n := 0
	for _, key := range keys {
		err := s.write(ctx, "delete", func(ctx context.Context) error {
			return s.kv.Delete(ctx, key)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// List 返回用户当前有效的会话，按创建时间升序。
func (s *RefreshStore) List(ctx context.Context, userID string) ([]Session, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	prefix := s.userPrefix(userID)
	keys, err := s.kv.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("xauth: list sessions: %w", err)
	}

	now := s.now().Unix()
	sessions := make([]Session, 0, len(keys))
	for _, key := range keys {
		raw, err := s.kv.Get(ctx, key)
		if xkv.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("xauth: get session: %w", err)
		}
		var info DeviceInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			continue
		}
		if info.ExpiresAt <= now {
			continue
		}
		sessions = append(sessions, Session{JTI: strings.TrimPrefix(key, prefix), DeviceInfo: info})
	}
	slices.SortFunc(sessions, func(a, b Session) int {
		return int(a.CreatedAt - b.CreatedAt)
	})
	return sessions, nil
}

func (s *RefreshStore) key(userID, jti string) string {
	return s.userPrefix(userID) + jti
}

func (s *RefreshStore) userPrefix(userID string) string {
	return s.prefix + userID + ":"
}

// write 带重试执行写操作，参数错误和 ctx 取消不重试。
func (s *RefreshStore) write(ctx context.Context, op string, fn func(context.Context) error) error {
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, xkv.ErrEmptyKey) &&
				!errors.Is(err, xkv.ErrNegativeTTL) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}),
	).Do(func() error {
		return fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("xauth: %s session: %w", op, err)
	}
	return nil
}
