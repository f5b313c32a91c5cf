// Package xrun 管理进程内多个长期运行的服务：任一服务出错或收到退出信号时，
// 取消所有服务并等待它们结束。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)},
//	    xrun.Service{Name: "http", Run: xrun.HTTPServer(srv, 10*time.Second)},
//	    xrun.Service{Name: "config-watch", Run: watcher.Run},
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常退出
//	}
package xrun
