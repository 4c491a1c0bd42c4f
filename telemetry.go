package variants

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/goliatone/go-variants"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

var (
	resolveLatency   metric.Float64Histogram
	resolutionsTotal metric.Int64Counter
	resolveErrors    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		resolveLatency, err = meter.Float64Histogram(
			"variants_resolve_duration_seconds",
			metric.WithDescription("Duration of single variant resolutions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolutionsTotal, err = meter.Int64Counter(
			"variants_resolutions_total",
			metric.WithDescription("Variant values produced, by source"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolveErrors, err = meter.Int64Counter(
			"variants_resolution_errors_total",
			metric.WithDescription("Variant resolutions that failed without a fallback"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordResolution(ctx context.Context, id string, source Source, duration time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("variant", id))
	if err != nil {
		resolveErrors.Add(ctx, 1, attrs)
		return
	}
	resolveLatency.Record(ctx, duration.Seconds(), attrs)
	resolutionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant", id),
		attribute.String("source", string(source)),
	))
}

func startResolveSpan(ctx context.Context, applicable, persisted int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(
			attribute.Int("variants.applicable", applicable),
			attribute.Int("variants.persisted", persisted),
		),
	)
}

func endResolveSpan(span trace.Span, result Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}
	span.SetAttributes(
		attribute.Int("variants.final", len(result.Final)),
		attribute.Int("variants.new", len(result.New)),
		attribute.Bool("variants.needs_persist", result.NeedsPersist),
	)
	span.End()
}
