// Package tracking pushes resilience-layer counters to the process's
// OpenTelemetry meter provider. All calls are best effort: initialization
// failures are reported to stderr once and recording becomes a no-op, so
// metrics can never affect a request outcome.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "analysis-backend/resilience"

	metricCacheHit           = "cache.hit"
	metricCacheMiss          = "cache.miss"
	metricFallbackTransition = "ratelimit.fallback.transitions"

	attrDBSystem     = "db.system.name"
	attrFallbackMode = "ratelimit.fallback.active"
)

var (
	meterOnce sync.Once

	cacheHitCounter    metric.Int64Counter
	cacheMissCounter   metric.Int64Counter
	transitionCounter  metric.Int64Counter
	redisSystemAttrSet = attribute.NewSet(attribute.String(attrDBSystem, "redis"))
)

func logMetricError(name string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize metric %s: %v\n", name, err)
	}
}

func initMeter() {
	meter := otel.GetMeterProvider().Meter(meterName)

	var err error
	cacheHitCounter, err = meter.Int64Counter(metricCacheHit,
		metric.WithDescription("Cache lookups answered from the store"))
	logMetricError(metricCacheHit, err)

	cacheMissCounter, err = meter.Int64Counter(metricCacheMiss,
		metric.WithDescription("Cache lookups that found no usable value"))
	logMetricError(metricCacheMiss, err)

	transitionCounter, err = meter.Int64Counter(metricFallbackTransition,
		metric.WithDescription("Rate-limit store transitions between networked and fallback mode"))
	logMetricError(metricFallbackTransition, err)
}

// RecordCacheHit counts a cache hit.
func RecordCacheHit(ctx context.Context) {
	meterOnce.Do(initMeter)
	if cacheHitCounter == nil {
		return
	}
	cacheHitCounter.Add(ctx, 1, metric.WithAttributeSet(redisSystemAttrSet))
}

// RecordCacheMiss counts a cache miss, including misses synthesized while the
// store is disconnected.
func RecordCacheMiss(ctx context.Context) {
	meterOnce.Do(initMeter)
	if cacheMissCounter == nil {
		return
	}
	cacheMissCounter.Add(ctx, 1, metric.WithAttributeSet(redisSystemAttrSet))
}

// RecordFallbackTransition counts an edge between networked and fallback mode
// of the rate-limit store.
func RecordFallbackTransition(ctx context.Context, active bool) {
	meterOnce.Do(initMeter)
	if transitionCounter == nil {
		return
	}
	transitionCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool(attrFallbackMode, active)))
}
