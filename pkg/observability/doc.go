// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog，支持动态级别和 lumberjack 文件轮转
//
// 限流指标和追踪直接使用 OpenTelemetry API，见 resilience/xlimit。
package observability
