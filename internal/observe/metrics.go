// Package observe provides application-wide observability primitives for
// AugmentOS Cloud: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] on the Prometheus default
// registerer; no /metrics route is served. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/augmentos-org/cloud-core"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks recognizer-session-start-to-first-partial latency.
	ASRDuration metric.Float64Histogram

	// WebhookDuration tracks session_request/stop_request dispatch latency.
	WebhookDuration metric.Float64Histogram

	// BindDuration tracks the time between startApp and a successful BindTPA.
	BindDuration metric.Float64Histogram

	// --- Counters ---

	// AppLifecycleEvents counts startApp/stopApp/bindTpa outcomes. Use with
	// attributes: attribute.String("event", ...), attribute.String("status", ...)
	AppLifecycleEvents metric.Int64Counter

	// WebhookCalls counts webhook dispatches. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	WebhookCalls metric.Int64Counter

	// TranscriptEvents counts ASR partial/final deliveries. Use with attribute:
	//   attribute.String("key", ...), attribute.Bool("final", ...)
	TranscriptEvents metric.Int64Counter

	// --- Error counters ---

	// WebhookErrors counts webhook failures. Use with attributes:
	//   attribute.String("kind", ...)
	WebhookErrors metric.Int64Counter

	// RecognizerErrors counts ASR stream failures. Use with attribute:
	//   attribute.String("reason", ...)
	RecognizerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live glasses UserSessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveApps tracks the number of bound TPA connections across all
	// sessions.
	ActiveApps metric.Int64UpDownCounter

	// ActiveRecognizers tracks the number of live per-language ASR streams.
	ActiveRecognizers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for real-time session-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ASRDuration, err = m.Float64Histogram("augmentos.asr.duration",
		metric.WithDescription("Latency from recognizer stream start to first partial result."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WebhookDuration, err = m.Float64Histogram("augmentos.webhook.duration",
		metric.WithDescription("Latency of session_request/stop_request webhook dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BindDuration, err = m.Float64Histogram("augmentos.bind.duration",
		metric.WithDescription("Latency between startApp and a successful TPA bind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AppLifecycleEvents, err = m.Int64Counter("augmentos.app.lifecycle_events",
		metric.WithDescription("Total startApp/stopApp/bindTpa outcomes by event and status."),
	); err != nil {
		return nil, err
	}
	if met.WebhookCalls, err = m.Int64Counter("augmentos.webhook.calls",
		metric.WithDescription("Total webhook dispatches by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEvents, err = m.Int64Counter("augmentos.transcript.events",
		metric.WithDescription("Total transcript/translation deliveries by effective key."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.WebhookErrors, err = m.Int64Counter("augmentos.webhook.errors",
		metric.WithDescription("Total webhook failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerErrors, err = m.Int64Counter("augmentos.recognizer.errors",
		metric.WithDescription("Total ASR stream failures by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("augmentos.active_sessions",
		metric.WithDescription("Number of live glasses UserSessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveApps, err = m.Int64UpDownCounter("augmentos.active_apps",
		metric.WithDescription("Number of bound TPA connections across all sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecognizers, err = m.Int64UpDownCounter("augmentos.active_recognizers",
		metric.WithDescription("Number of live per-language ASR streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("augmentos.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAppLifecycleEvent is a convenience method that records a
// startApp/stopApp/bindTpa outcome.
func (m *Metrics) RecordAppLifecycleEvent(ctx context.Context, event, status string) {
	m.AppLifecycleEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("event", event),
			attribute.String("status", status),
		),
	)
}

// RecordWebhookCall is a convenience method that records a webhook dispatch
// counter increment with the standard attribute set.
func (m *Metrics) RecordWebhookCall(ctx context.Context, kind, status string) {
	m.WebhookCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordTranscriptEvent is a convenience method that records a transcript
// delivery counter increment.
func (m *Metrics) RecordTranscriptEvent(ctx context.Context, effectiveKey string, final bool) {
	m.TranscriptEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("key", effectiveKey),
			attribute.Bool("final", final),
		),
	)
}

// RecordWebhookError is a convenience method that records a webhook error
// counter increment.
func (m *Metrics) RecordWebhookError(ctx context.Context, kind string) {
	m.WebhookErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
