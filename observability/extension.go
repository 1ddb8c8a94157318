package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nexelab/translate/ext"
)

const meterName = "github.com/nexelab/translate/observability"

// Compile-time interface checks.
var (
	_ ext.Extension            = (*MetricsExtension)(nil)
	_ ext.TranslationStarted   = (*MetricsExtension)(nil)
	_ ext.CacheHit             = (*MetricsExtension)(nil)
	_ ext.TranslationCompleted = (*MetricsExtension)(nil)
	_ ext.TranslationFailed    = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide translation metrics. Register it
// on the Translator to track start rates, completion and failure
// counts, cache-hit counts, and end-to-end translation duration.
type MetricsExtension struct {
	started   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	cacheHits metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global meter
// provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	started, _ := meter.Int64Counter("translate.jobs.started",
		metric.WithDescription("Translation jobs started"))
	completed, _ := meter.Int64Counter("translate.jobs.completed",
		metric.WithDescription("Translation jobs completed successfully"))
	failed, _ := meter.Int64Counter("translate.jobs.failed",
		metric.WithDescription("Translation jobs failed, including cancellations"))
	cacheHits, _ := meter.Int64Counter("translate.cache.hits",
		metric.WithDescription("Translations served from the cache index"))
	duration, _ := meter.Float64Histogram("translate.jobs.duration",
		metric.WithDescription("End-to-end translation duration"),
		metric.WithUnit("s"))

	return &MetricsExtension{
		started:   started,
		completed: completed,
		failed:    failed,
		cacheHits: cacheHits,
		duration:  duration,
	}
}

// Name implements ext.Extension.
func (e *MetricsExtension) Name() string { return "observability-metrics" }

// OnTranslationStarted implements ext.TranslationStarted.
func (e *MetricsExtension) OnTranslationStarted(ctx context.Context, _ ext.JobInfo) error {
	e.started.Add(ctx, 1)
	return nil
}

// OnCacheHit implements ext.CacheHit.
func (e *MetricsExtension) OnCacheHit(ctx context.Context, _ ext.JobInfo) error {
	e.cacheHits.Add(ctx, 1)
	return nil
}

// OnTranslationCompleted implements ext.TranslationCompleted.
func (e *MetricsExtension) OnTranslationCompleted(ctx context.Context, _ ext.JobInfo, elapsed time.Duration) error {
	e.completed.Add(ctx, 1)
	e.duration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", "ok")))
	return nil
}

// OnTranslationFailed implements ext.TranslationFailed.
func (e *MetricsExtension) OnTranslationFailed(ctx context.Context, _ ext.JobInfo, _ error) error {
	e.failed.Add(ctx, 1)
	return nil
}
