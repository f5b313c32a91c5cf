package xlimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricChecks        = "xlimit.checks"
	metricStorageErrors = "xlimit.storage_errors"
	metricCheckDuration = "xlimit.check.duration"
)

// 存储操作名，用作 op 属性
const (
	opLoad    = "load"
	opPersist = "persist"
	opLock    = "lock"
	opReset   = "reset"
)

type metrics struct {
	checks        metric.Int64Counter
	storageErrors metric.Int64Counter
	duration      metric.Float64Histogram
}

// newMetrics 在 mp 为 nil 时返回 nil，nil *metrics 的方法均为空操作。
func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter("github.com/DosymzhanKogabaev/finsight-ai/pkg/resilience/xlimit")

	checks, err := meter.Int64Counter(metricChecks,
		metric.WithDescription("限流检查次数"),
		metric.WithUnit("{check}"))
	if err != nil {
		return nil, err
	}
	storageErrors, err := meter.Int64Counter(metricStorageErrors,
		metric.WithDescription("限流状态存储失败次数"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(metricCheckDuration,
		metric.WithDescription("限流检查耗时"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5))
	if err != nil {
		return nil, err
	}
	return &metrics{checks: checks, storageErrors: storageErrors, duration: duration}, nil
}

func (m *metrics) recordCheck(ctx context.Context, scope string, allowed bool, d time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.Bool("allowed", allowed),
	)
	m.checks.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

func (m *metrics) recordStorageError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.storageErrors.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("op", op)))
}
