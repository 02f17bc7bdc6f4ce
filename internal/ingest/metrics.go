package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/casefile-labs/lexrag/internal/ingest"

// Metrics holds ingest instruments.
type Metrics struct {
	documents metric.Int64Counter
	duration  metric.Float64Histogram
	chunks    metric.Int64Histogram
	failures  metric.Int64Counter
}

// NewMetrics creates metrics backed by the global meter provider.
// Instrument creation errors leave the instrument nil; recording then
// becomes a no-op rather than a failure.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.documents, _ = meter.Int64Counter(
		"lexrag.ingest.documents_total",
		metric.WithDescription("Total documents indexed by classified category"),
		metric.WithUnit("{document}"),
	)

	m.duration, _ = meter.Float64Histogram(
		"lexrag.ingest.duration_seconds",
		metric.WithDescription("End-to-end document ingest latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)

	m.chunks, _ = meter.Int64Histogram(
		"lexrag.ingest.chunks_per_document",
		metric.WithDescription("Chunks produced per indexed document"),
		metric.WithUnit("{chunk}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500),
	)

	m.failures, _ = meter.Int64Counter(
		"lexrag.ingest.chunk_failures_total",
		metric.WithDescription("Chunks skipped because embedding failed"),
		metric.WithUnit("{chunk}"),
	)

	return m
}

// RecordIngest records one completed document ingest.
func (m *Metrics) RecordIngest(ctx context.Context, category string, duration time.Duration, chunkCount, failedChunks int) {
	categoryAttr := metric.WithAttributes(attribute.String("category", category))

	if m.documents != nil {
		m.documents.Add(ctx, 1, categoryAttr)
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), categoryAttr)
	}
	if m.chunks != nil {
		m.chunks.Record(ctx, int64(chunkCount), categoryAttr)
	}
	if m.failures != nil && failedChunks > 0 {
		m.failures.Add(ctx, int64(failedChunks), categoryAttr)
	}
}
