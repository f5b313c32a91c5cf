// Package xlog 是基于 log/slog 的结构化日志。
//
// 所有方法都要求 context，EnrichHandler 从 context 中提取 request_id、
// user_id、client_ip 并附加到每条日志。级别可在运行时通过 SetLevel 调整。
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("info").
//		SetFormat("json").
//		SetRotation("/var/log/finsight/gate.log", xlog.RotateMaxSizeMB(100)).
//		Build()
//	defer cleanup()
//
// 文件输出通过 lumberjack 轮转。Nop 返回丢弃所有日志的 Logger，用于测试和
// 未配置日志的组件。
package xlog
