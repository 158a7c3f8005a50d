package latency

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/tracing"
)

// Injector applies a Policy inside a span linked to the caller's span and records the delay.
type Injector struct {
	policy *Policy
	tracer trace.Tracer
	delays *prometheus.HistogramVec
}

func NewInjector(policy *Policy, tracer trace.Tracer, reg prometheus.Registerer) *Injector {
	delays := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "injected_delay_seconds",
		Help:    "Synthetic latency injected before a lookup, by step and api version.",
		Buckets: []float64{0, 0.01, 0.1, 0.5, 1, 1.5, 1.75, 2, 2.25, 3},
	}, []string{"step", "api_version"})
	if reg != nil {
		reg.MustRegister(delays)
	}
	return &Injector{policy: policy, tracer: tracer, delays: delays}
}

// Apply runs the check step named step for version v: it starts the linked span, waits for the
// policy's delay, and returns the delay actually applied. A cancelled ctx ends the wait early.
func (in *Injector) Apply(ctx context.Context, step string, v apiversion.Version) (time.Duration, error) {
	ctx, span := tracing.StartLinked(ctx, in.tracer, step,
		attribute.Int(tracing.AttrAPIVersion, int(v)),
		attribute.Bool("latency.degraded", v.Degraded()),
	)
	defer span.End()

	d := in.policy.Delay(v)
	span.SetAttributes(attribute.Int64("latency.injected_ms", d.Milliseconds()))
	start := time.Now()
	err := Wait(ctx, d)
	elapsed := time.Since(start)
	in.delays.WithLabelValues(step, v.String()).Observe(elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "latency wait interrupted")
		return elapsed, err
	}
	return d, nil
}
