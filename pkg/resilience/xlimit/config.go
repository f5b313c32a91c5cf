package xlimit

import (
	"fmt"
	"time"
)

// Config 一个 scope 类别的限流参数，不可变，可并发共享。
type Config struct {
	// MillisecondsPerRequest 两次放行之间的最小间隔，必须 > 0。
	MillisecondsPerRequest int64 `koanf:"milliseconds_per_request" json:"millisecondsPerRequest"`

	// GracePeriodMs 允许提前于名义截止时间放行的宽限，超过间隔时按间隔截断。
	GracePeriodMs int64 `koanf:"grace_period_ms" json:"gracePeriodMs"`
}

// Validate 检查配置，非法时返回包装了 ErrInvalidConfig 的错误。
func (c Config) Validate() error {
	if c.MillisecondsPerRequest <= 0 {
		return fmt.Errorf("%w: milliseconds_per_request must be > 0, got %d", ErrInvalidConfig, c.MillisecondsPerRequest)
	}
	if c.GracePeriodMs < 0 {
		return fmt.Errorf("%w: grace_period_ms must be >= 0, got %d", ErrInvalidConfig, c.GracePeriodMs)
	}
	return nil
}

// EffectiveGrace 返回 min(GracePeriodMs, MillisecondsPerRequest)。
func (c Config) EffectiveGrace() int64 {
	return min(c.GracePeriodMs, c.MillisecondsPerRequest)
}

// Interval 以 Duration 表示间隔。
func (c Config) Interval() time.Duration {
	return time.Duration(c.MillisecondsPerRequest) * time.Millisecond
}
