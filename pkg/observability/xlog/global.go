package xlog

import (
	"sync/atomic"
)

var global atomic.Pointer[LoggerWithLevel]

// Default 返回全局 Logger，未设置时惰性创建 stderr/info/text Logger。
func Default() LoggerWithLevel {
	if l := global.Load(); l != nil {
		return *l
	}
	l, _, err := New().Build()
	if err != nil {
		l = Nop()
	}
	global.CompareAndSwap(nil, &l)
	return *global.Load()
}

// SetDefault 替换全局 Logger，nil 被忽略。
func SetDefault(l LoggerWithLevel) {
	if l == nil {
		return
	}
	global.Store(&l)
}
