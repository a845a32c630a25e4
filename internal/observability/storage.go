package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"trustguard/internal/models"
	"trustguard/internal/storage"
)

// InstrumentedStorage wraps the rejection log with OpenTelemetry tracing and
// metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("trustguard/storage")
	meter := otel.Meter("trustguard/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of rejection log operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of rejection log operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	finishSpan(ctx, span, s.errors, attrs, err)
}

func (s *InstrumentedStorage) RecordRejection(ctx context.Context, r *models.Rejection) error {
	ctx, span := s.startSpan(ctx, "RecordRejection", attribute.String("ratelimit.policy", r.Policy))
	start := time.Now()
	err := s.inner.RecordRejection(ctx, r)
	s.record(ctx, span, "RecordRejection", start, err)
	return err
}

func (s *InstrumentedStorage) Rejections(ctx context.Context, filter models.RejectionFilter) ([]*models.Rejection, error) {
	ctx, span := s.startSpan(ctx, "Rejections",
		attribute.String("ratelimit.policy", filter.Policy),
		attribute.Int("limit", filter.EffectiveLimit()),
	)
	start := time.Now()
	result, err := s.inner.Rejections(ctx, filter)
	s.record(ctx, span, "Rejections", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

// finishSpan counts err, marks the span status and ends it.
func finishSpan(ctx context.Context, span trace.Span, errs metric.Int64Counter, attrs metric.AddOption, err error) {
	if err != nil {
		errs.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
