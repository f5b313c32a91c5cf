// Package config 定义 finsight-gate 的配置结构、默认值和校验。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/config/xconf"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/resilience/xlimit"
)

// 环境变量覆盖，密钥类配置不应写进配置文件。
const (
	EnvJWTSecret     = "FINSIGHT_JWT_SECRET"
	EnvRedisPassword = "FINSIGHT_REDIS_PASSWORD"
)

// 存储后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
)

// ErrInvalid 配置校验失败。
var ErrInvalid = errors.New("config: invalid")

// Config 应用配置。
type Config struct {
	Server  Server  `koanf:"server"`
	Log     Log     `koanf:"log"`
	Auth    Auth    `koanf:"auth"`
	Limits  Limits  `koanf:"limits"`
	Storage Storage `koanf:"storage"`
}

type Server struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// TrustRemoteAddr 没有代理头时用 RemoteAddr 作为客户端 IP。
	TrustRemoteAddr bool `koanf:"trust_remote_addr"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File 非空时写入文件并按大小轮转。
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type Auth struct {
	Secret     string        `koanf:"secret"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
}

// Limits 各 scope 的限流参数及 Registry 设置。
type Limits struct {
	API  xlimit.Config `koanf:"api"`
	Auth xlimit.Config `koanf:"auth"`

	CheckTimeout     time.Duration `koanf:"check_timeout"`
	MaxActors        int           `koanf:"max_actors"`
	IdleTTL          time.Duration `koanf:"idle_ttl"`
	StateTTL         time.Duration `koanf:"state_ttl"`
	InternalNetworks []string      `koanf:"internal_networks"`
	// DistributedLock 多实例部署时启用 Redis 跨实例锁，要求 redis 后端。
	DistributedLock bool `koanf:"distributed_lock"`
}

type Storage struct {
	Backend string `koanf:"backend"`
	// Breaker 为存储加熔断，连续失败后快速失败。
	Breaker bool  `koanf:"breaker"`
	Redis   Redis `koanf:"redis"`
	Etcd    Etcd  `koanf:"etcd"`
}

type Redis struct {
	Addrs    []string `koanf:"addrs"`
	Password string   `koanf:"password"`
	DB       int      `koanf:"db"`
}

type Etcd struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// Default 返回默认配置，限流参数取自线上部署。
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: Log{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 7},
		Auth: Auth{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Limits: Limits{
			API:          xlimit.Config{MillisecondsPerRequest: 70, GracePeriodMs: 5000},
			Auth:         xlimit.Config{MillisecondsPerRequest: 1000, GracePeriodMs: 0},
			CheckTimeout: 200 * time.Millisecond,
			MaxActors:    100_000,
			IdleTTL:      10 * time.Minute,
			StateTTL:     time.Hour,
		},
		Storage: Storage{
			Backend: BackendMemory,
			Breaker: true,
			Etcd:    Etcd{DialTimeout: 5 * time.Second},
		},
	}
}

// Load 读取配置文件并叠加环境变量，返回前完成校验。path 为空时只用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		src, err := xconf.Load(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(src); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromSource 在默认值之上解出 src，不读取环境变量。配置热更新时使用。
func FromSource(src *xconf.Source) (*Config, error) {
	cfg := Default()
	if err := cfg.apply(src); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) apply(src *xconf.Source) error {
	return src.Unmarshal("", c)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.Auth.Secret = v
	}
	if v, ok := lookup(EnvRedisPassword); ok && v != "" {
		c.Storage.Redis.Password = v
	}
}

// Validate 校验配置，返回所有问题。
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Server.Addr == "" {
		add("server.addr is empty")
	}
	if c.Auth.Secret == "" {
		add("auth.secret is empty (set %s)", EnvJWTSecret)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		add("auth token ttl must be positive")
	}
	if err := c.Limits.API.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("limits.api: %w", err))
	}
	if err := c.Limits.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("limits.auth: %w", err))
	}
	if _, err := xlimit.ParseNetworks(c.Limits.InternalNetworks); err != nil {
		errs = append(errs, fmt.Errorf("limits.internal_networks: %w", err))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case BackendMemory:
	case BackendRedis:
		if len(c.Storage.Redis.Addrs) == 0 {
			add("storage.redis.addrs is empty")
		}
	case BackendEtcd:
		if len(c.Storage.Etcd.Endpoints) == 0 {
			add("storage.etcd.endpoints is empty")
		}
	default:
		add("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Limits.DistributedLock && len(c.Storage.Redis.Addrs) == 0 {
		add("limits.distributed_lock requires storage.redis.addrs")
	}
	return errors.Join(errs...)
}
