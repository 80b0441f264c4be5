package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

const (
	metricCreatedTotal  = "rewind.checkpoints.created.total"
	metricSkippedTotal  = "rewind.checkpoints.skipped.total"
	metricBytesStored   = "rewind.checkpoint.bytes.stored.total"
	metricRestoresTotal = "rewind.restores.total"
	metricEvictedTotal  = "rewind.retention.evicted.total"
	metricOpDuration    = "rewind.operation.duration.seconds"
	attrKind            = "kind"
	attrEmergency       = "emergency"
	attrReason          = "reason"
	attrOp              = "op"
	attrStatus          = "status"
)

// Operation statuses used as metric attributes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 5 minutes.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// CheckpointMetrics holds the OTel instruments for checkpoint operations.
type CheckpointMetrics struct {
	created     metric.Int64Counter
	skipped     metric.Int64Counter
	bytesStored metric.Int64Counter
	restores    metric.Int64Counter
	evicted     metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewCheckpointMetrics creates the checkpoint instruments from mt.
func NewCheckpointMetrics(mt metric.Meter) (*CheckpointMetrics, error) {
	created, err := mt.Int64Counter(metricCreatedTotal,
		metric.WithDescription("Checkpoints written"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCreatedTotal, err)
	}

	skipped, err := mt.Int64Counter(metricSkippedTotal,
		metric.WithDescription("Create requests that did not write a checkpoint"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSkippedTotal, err)
	}

	bytesStored, err := mt.Int64Counter(metricBytesStored,
		metric.WithDescription("Uncompressed bytes written into checkpoint payloads"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBytesStored, err)
	}

	restores, err := mt.Int64Counter(metricRestoresTotal,
		metric.WithDescription("Restore operations"),
		metric.WithUnit("{restore}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRestoresTotal, err)
	}

	evicted, err := mt.Int64Counter(metricEvictedTotal,
		metric.WithDescription("Checkpoints removed by retention"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricEvictedTotal, err)
	}

	duration, err := mt.Float64Histogram(metricOpDuration,
		metric.WithDescription("Checkpoint operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpDuration, err)
	}

	return &CheckpointMetrics{
		created:     created,
		skipped:     skipped,
		bytesStored: bytesStored,
		restores:    restores,
		evicted:     evicted,
		duration:    duration,
	}, nil
}

// NoopCheckpointMetrics returns instruments that record nothing.
func NoopCheckpointMetrics() *CheckpointMetrics {
	m, err := NewCheckpointMetrics(noopmetric.NewMeterProvider().Meter(InstrumentationName))
	if err != nil {
		// The noop meter never fails.
		panic(err)
	}

	return m
}

// RecordCreated records a written checkpoint.
func (cm *CheckpointMetrics) RecordCreated(ctx context.Context, kind string, emergency bool, bytesStored int64) {
	cm.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrKind, kind),
		attribute.Bool(attrEmergency, emergency),
	))
	cm.bytesStored.Add(ctx, bytesStored, metric.WithAttributes(attribute.String(attrKind, kind)))
}

// RecordSkipped records a create request that produced no checkpoint.
func (cm *CheckpointMetrics) RecordSkipped(ctx context.Context, reason string) {
	cm.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// RecordRestore records a finished restore.
func (cm *CheckpointMetrics) RecordRestore(ctx context.Context, status string) {
	cm.restores.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordEvicted records checkpoints removed by retention.
func (cm *CheckpointMetrics) RecordEvicted(ctx context.Context, count int) {
	if count <= 0 {
		return
	}

	cm.evicted.Add(ctx, int64(count))
}

// RecordDuration records the duration of op.
func (cm *CheckpointMetrics) RecordDuration(ctx context.Context, op, status string, d time.Duration) {
	cm.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	))
}

// Status maps an error to StatusOK or StatusError.
func Status(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusOK
}
