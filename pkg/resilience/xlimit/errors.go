package xlimit

import (
	"errors"
)

var (
	// ErrInvalidConfig 配置不合法，应在加载配置时返回而不是请求时。
	ErrInvalidConfig = errors.New("xlimit: invalid config")

	// ErrRegistryClosed Registry 已关闭。
	ErrRegistryClosed = errors.New("xlimit: registry closed")

	// ErrEmptyKey scope key 为空。
	ErrEmptyKey = errors.New("xlimit: empty key")

	// ErrNilStore 未提供存储。
	ErrNilStore = errors.New("xlimit: nil store")

	// ErrLock 获取 key 锁失败（含超时和分布式锁失败），中间件按放行处理。
	ErrLock = errors.New("xlimit: acquire key lock")

	// ErrStorage 存储读写失败，只用于日志和指标，不向调用方返回。
	ErrStorage = errors.New("xlimit: storage")
)
