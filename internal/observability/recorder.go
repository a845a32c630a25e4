package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"trustguard/internal/stats"
)

// MetricsRecorder exports admission decisions as the counter
// trustguard.decisions{policy, outcome}.
type MetricsRecorder struct {
	decisions metric.Int64Counter
}

var _ stats.Recorder = (*MetricsRecorder)(nil)

func NewMetricsRecorder() (*MetricsRecorder, error) {
	decisions, err := otel.Meter("trustguard/ratelimit").Int64Counter(
		"trustguard.decisions",
		metric.WithDescription("Admission decisions by policy and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsRecorder{decisions: decisions}, nil
}

func (r *MetricsRecorder) Record(ctx context.Context, ev stats.Event) error {
	r.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", ev.Policy),
		attribute.String("outcome", stats.Outcome(ev)),
	))
	return nil
}
