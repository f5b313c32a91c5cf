package xkv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultScanCount = 256

// Redis 基于 go-redis 的 Store。
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64
}

// RedisOption 配置 Redis。
type RedisOption func(*Redis)

// WithKeyPrefix 为所有 key 加统一前缀，List 返回的 key 不含该前缀。
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithScanCount 设置 SCAN 的 COUNT 提示，默认 256。
func WithScanCount(n int64) RedisOption {
	return func(r *Redis) {
		if n > 0 {
			r.scanCount = n
		}
	}
}

// NewRedis 使用已有的 redis 客户端创建 Store，Store 不负责关闭客户端。
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	r := &Redis{client: client, scanCount: defaultScanCount}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Client 返回底层客户端。
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Get 读取 key，不存在时返回 ErrNotFound。
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("xkv: redis get %q: %w", key, err)
	}
	return v, nil
}

// Put 写入 key，ttl 为 0 表示不过期。
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkPut(key, ttl); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("xkv: redis set %q: %w", key, err)
	}
	return nil
}

// Delete 删除 key，key 不存在不是错误。
func (r *Redis) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("xkv: redis del %q: %w", key, err)
	}
	return nil
}

// List 返回以 prefix 开头的 key。集群模式下逐个 master 扫描并合并结果。
func (r *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	match := r.prefix + escapeGlob(prefix) + "*"
	cc, ok := r.client.(*redis.ClusterClient)
	if !ok {
		keys, err := r.scan(ctx, r.client, match)
		if err != nil {
			return nil, fmt.Errorf("xkv: redis scan %q: %w", prefix, err)
		}
		return dedup(keys), nil
	}

	var (
		mu   sync.Mutex
		keys []string
	)
	err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		batch, err := r.scan(ctx, node, match)
		if err != nil {
			return err
		}
		mu.Lock()
		keys = append(keys, batch...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("xkv: redis scan %q: %w", prefix, err)
	}
	return dedup(keys), nil
}

// scan 在单个节点上遍历 match，返回去掉 Store 前缀的 key。
func (r *Redis) scan(ctx context.Context, c redis.Cmdable, match string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.Scan(ctx, cursor, match, r.scanCount).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, k[len(r.prefix):])
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// escapeGlob 转义 MATCH 模式中的元字符，使 prefix 按字面匹配。
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// SCAN 在 rehash 期间可能返回重复 key。
func dedup(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

var _ Store = (*Redis)(nil)
