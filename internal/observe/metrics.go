// Package observe provides application-wide observability primitives for
// dualcap: OpenTelemetry metrics, tracing helpers and HTTP middleware that
// ties them together with structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// Per-stream capture counters are never recorded from the audio callbacks.
// The capture layer keeps them in atomics and [Metrics.RegisterStreamStats]
// reads them at collection time.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all dualcap metrics.
const meterName = "github.com/maestro-audio/dualcap"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture lifecycle ---

	// CaptureStarts counts successful capture starts.
	CaptureStarts metric.Int64Counter

	// CaptureStops counts capture stops that tore down running streams.
	CaptureStops metric.Int64Counter

	// CaptureFailures counts failed starts. Use with attribute:
	//   attribute.String("reason", ...)
	CaptureFailures metric.Int64Counter

	// --- Consumer ---

	// ChunksDrained counts chunks handed to the consumer.
	ChunksDrained metric.Int64Counter

	// EventSubscribers tracks the number of connected event stream clients.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.CaptureStarts, err = m.Int64Counter("dualcap.capture.starts",
		metric.WithDescription("Total successful capture starts."),
	); err != nil {
		return nil, err
	}
	if met.CaptureStops, err = m.Int64Counter("dualcap.capture.stops",
		metric.WithDescription("Total capture stops."),
	); err != nil {
		return nil, err
	}
	if met.CaptureFailures, err = m.Int64Counter("dualcap.capture.failures",
		metric.WithDescription("Total failed capture starts by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDrained, err = m.Int64Counter("dualcap.chunks.drained",
		metric.WithDescription("Total chunks delivered to the consumer."),
	); err != nil {
		return nil, err
	}
	if met.EventSubscribers, err = m.Int64UpDownCounter("dualcap.events.subscribers",
		metric.WithDescription("Number of connected event stream clients."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("dualcap.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCaptureStart records a successful start.
func (m *Metrics) RecordCaptureStart(ctx context.Context) {
	m.CaptureStarts.Add(ctx, 1)
}

// RecordCaptureStop records a stop of running capture.
func (m *Metrics) RecordCaptureStop(ctx context.Context) {
	m.CaptureStops.Add(ctx, 1)
}

// RecordCaptureFailure records a failed start with the given reason.
func (m *Metrics) RecordCaptureFailure(ctx context.Context, reason string) {
	m.CaptureFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordChunksDrained records n chunks delivered to the consumer.
func (m *Metrics) RecordChunksDrained(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.ChunksDrained.Add(ctx, int64(n))
}
