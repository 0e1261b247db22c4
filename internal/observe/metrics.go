// Package observe provides OpenTelemetry metrics for the gateway and the
// HTTP middleware that records request latency.
//
// Metrics are recorded through the OTel Metrics API and exported to
// Prometheus by [InitProvider]. All Record methods are safe on a nil
// *Metrics, so components can run without instrumentation in tests.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nikhilbhutani/voicegateway"

// Synthesis result statuses.
const (
	StatusOK      = "ok"
	StatusNoAudio = "no_audio"
	StatusError   = "error"
)

// Metrics holds every instrument the gateway records.
type Metrics struct {
	// CacheLookups counts result cache lookups by result (hit, miss).
	CacheLookups metric.Int64Counter

	// SynthesisDuration tracks backend synthesis latency by model.
	SynthesisDuration metric.Float64Histogram

	// SynthesisResults counts synthesis outcomes by model and status.
	SynthesisResults metric.Int64Counter

	// DispatchRequests counts dispatches by result (matched, unmatched).
	DispatchRequests metric.Int64Counter

	// HTTPRequestDuration tracks request latency by method and route pattern.
	HTTPRequestDuration metric.Float64Histogram
}

// Synthesis of a short phrase on CPU ranges from a few hundred ms to tens of seconds.
var synthesisBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CacheLookups, err = m.Int64Counter("voicegateway.cache.lookups",
		metric.WithDescription("Result cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("voicegateway.synthesis.duration",
		metric.WithDescription("Latency of backend synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(synthesisBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisResults, err = m.Int64Counter("voicegateway.synthesis.results",
		metric.WithDescription("Synthesis outcomes by model and status."),
	); err != nil {
		return nil, err
	}
	if met.DispatchRequests, err = m.Int64Counter("voicegateway.dispatch.requests",
		metric.WithDescription("Dispatched messages by match result."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicegateway.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordSynthesis(ctx context.Context, model, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.SynthesisDuration.Record(ctx, d.Seconds(), attrs)
	m.SynthesisResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordDispatch(ctx context.Context, matched bool) {
	if m == nil {
		return
	}
	result := "unmatched"
	if matched {
		result = "matched"
	}
	m.DispatchRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
