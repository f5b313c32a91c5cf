package xlimit

// actor 是一个 scope key 的内存状态，只能在持有该 key 的锁时访问。
type actor struct {
	nextAllowed int64
	loaded      bool
}

// decide 是纯函数：给定状态与当前时间，返回结论和新状态。
func decide(next, now int64, cfg Config) (allowed bool, newNext, retryAfter int64) {
	earliest := next - cfg.EffectiveGrace()
	if now >= earliest {
		return true, max(now, next) + cfg.MillisecondsPerRequest, 0
	}
	return false, next, earliest - now
}

// check 执行一次判定，返回结论以及状态是否改变。
func (a *actor) check(now int64, cfg Config) (*Result, bool) {
	allowed, next, retry := decide(a.nextAllowed, now, cfg)
	changed := next != a.nextAllowed
	a.nextAllowed = next
	return &Result{
		Allowed:      allowed,
		RetryAfterMs: retry,
		LimitMs:      cfg.MillisecondsPerRequest,
	}, changed
}
