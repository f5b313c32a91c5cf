package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/DosymzhanKogabaev/finsight-ai/internal/config"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/distributed/xdlock"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/storage/xkv"
)

// backend 打开的存储及其释放函数。limits 和 sessions 共享 store，
// 开启熔断时各自拥有独立的熔断器。
type backend struct {
	store    xkv.Store
	limits   xkv.Store
	sessions xkv.Store
	redis    redis.UniversalClient
	locker  xdlock.Locker
	closers []func() error
}

func (b *backend) close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func newRedisClient(c config.Redis) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Password,
		DB:       c.DB,
	})
}

// openBackend 按配置创建存储，按需包装熔断并创建跨实例锁。
func openBackend(cfg config.Storage, lock bool, logger xlog.Logger) (*backend, error) {
	b := &backend{}
	switch strings.ToLower(cfg.Backend) {
	case config.BackendMemory:
		m := xkv.NewMemory()
		b.store = m
		b.closers = append(b.closers, m.Close)
	case config.BackendRedis:
		client := newRedisClient(cfg.Redis)
		b.closers = append(b.closers, client.Close)
		store, err := xkv.NewRedis(client)
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.store, b.redis = store, client
	case config.BackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("server: connect etcd: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		store, err := xkv.NewEtcd(client)
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.store = store
	default:
		return nil, fmt.Errorf("%w: unknown storage.backend %q", config.ErrInvalid, cfg.Backend)
	}

	b.limits, b.sessions = b.store, b.store
	if cfg.Breaker {
		onChange := xkv.WithStateChange(func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "storage breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		})
		b.limits = xkv.WithBreaker(b.store, "ratelimit", onChange)
		b.sessions = xkv.WithBreaker(b.store, "sessions", onChange)
	}

	if lock {
		client := b.redis
		if client == nil {
			client = newRedisClient(cfg.Redis)
			b.closers = append(b.closers, client.Close)
		}
		locker, err := xdlock.NewRedis([]redis.UniversalClient{client})
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.locker = locker
	}
	return b, nil
}
