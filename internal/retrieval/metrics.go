package retrieval

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/casefile-labs/lexrag/internal/retrieval"

// Metrics holds retrieval instruments.
type Metrics struct {
	queries    metric.Int64Counter
	duration   metric.Float64Histogram
	candidates metric.Int64Histogram
}

// NewMetrics creates metrics backed by the global meter provider.
// Instrument creation errors leave the instrument nil; recording then
// becomes a no-op rather than a failure.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.queries, _ = meter.Int64Counter(
		"lexrag.retrieval.queries_total",
		metric.WithDescription("Total retrieval queries by classified intent"),
		metric.WithUnit("{query}"),
	)

	m.duration, _ = meter.Float64Histogram(
		"lexrag.retrieval.duration_seconds",
		metric.WithDescription("End-to-end retrieval latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)

	m.candidates, _ = meter.Int64Histogram(
		"lexrag.retrieval.source_candidates",
		metric.WithDescription("Candidates contributed per retrieval source"),
		metric.WithUnit("{candidate}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50, 100),
	)

	return m
}

// RecordQuery records one retrieval pass.
func (m *Metrics) RecordQuery(ctx context.Context, intent Intent, duration time.Duration, sourceCounts map[string]int) {
	intentAttr := metric.WithAttributes(attribute.String("intent", string(intent)))

	if m.queries != nil {
		m.queries.Add(ctx, 1, intentAttr)
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), intentAttr)
	}
	if m.candidates != nil {
		for source, count := range sourceCounts {
			m.candidates.Record(ctx, int64(count), metric.WithAttributes(attribute.String("source", source)))
		}
	}
}
