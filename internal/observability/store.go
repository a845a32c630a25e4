package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"trustguard/internal/ratelimit"
)

// InstrumentedStore wraps a ratelimit.Store with a span per Increment, a
// latency histogram and an error counter. Keys are not recorded as metric
// attributes; their cardinality is unbounded.
type InstrumentedStore struct {
	inner    ratelimit.Store
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ ratelimit.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps inner. backend ("memory", "redis") is attached
// to every measurement.
func NewInstrumentedStore(inner ratelimit.Store, backend string) (*InstrumentedStore, error) {
	meter := otel.Meter("trustguard/ratelimit")

	duration, err := meter.Float64Histogram(
		"ratelimit.store.duration",
		metric.WithDescription("Duration of counter store increments in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"ratelimit.store.errors",
		metric.WithDescription("Number of failed counter store increments"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		backend:  backend,
		tracer:   otel.Tracer("trustguard/ratelimit"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (ratelimit.Hit, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.Increment",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ratelimit.backend", s.backend),
			attribute.String("ratelimit.key", key),
			attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
		),
	)
	start := time.Now()

	hit, err := s.inner.Increment(ctx, key, window, now)

	attrs := metric.WithAttributes(attribute.String("backend", s.backend))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err == nil {
		span.SetAttributes(attribute.Int64("ratelimit.total_hits", hit.TotalHits))
	}
	finishSpan(ctx, span, s.errors, attrs, err)
	return hit, err
}
