package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: data is %T, want Sum[int64]", name, met.Data)
	}
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestRecordCacheLookupAndDispatch(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordCacheLookup(ctx, false)
	m.RecordDispatch(ctx, true)
	m.RecordDispatch(ctx, false)

	rm := collect(t, reader)

	if got := counterValue(t, rm, "voicegateway.cache.lookups", attribute.String("result", "hit")); got != 1 {
		t.Errorf("cache hits = %d, want 1", got)
	}
	if got := counterValue(t, rm, "voicegateway.cache.lookups", attribute.String("result", "miss")); got != 2 {
		t.Errorf("cache misses = %d, want 2", got)
	}
	if got := counterValue(t, rm, "voicegateway.dispatch.requests", attribute.String("result", "unmatched")); got != 1 {
		t.Errorf("unmatched dispatches = %d, want 1", got)
	}
}

func TestRecordSynthesis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSynthesis(ctx, "yuzusoft", StatusOK, 1500*time.Millisecond)
	m.RecordSynthesis(ctx, "yuzusoft", StatusNoAudio, 10*time.Millisecond)

	rm := collect(t, reader)

	got := counterValue(t, rm, "voicegateway.synthesis.results",
		attribute.String("model", "yuzusoft"), attribute.String("status", StatusNoAudio))
	if got != 1 {
		t.Errorf("no_audio results = %d, want 1", got)
	}

	met := findMetric(rm, "voicegateway.synthesis.duration")
	if met == nil {
		t.Fatal("synthesis duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data is %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram data points = %+v, want one point with count 2", hist.DataPoints)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordCacheLookup(ctx, true)
	m.RecordSynthesis(ctx, "a", StatusError, time.Second)
	m.RecordDispatch(ctx, false)

	h := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m, reader := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/{text}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/hello", "/world"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rm := collect(t, reader)
	met := findMetric(rm, "voicegateway.http.request.duration")
	if met == nil {
		t.Fatal("http duration not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 (free text must not become a label)", len(hist.DataPoints))
	}
	route, _ := hist.DataPoints[0].Attributes.Value("route")
	if route.AsString() != "/{text}" {
		t.Errorf("route = %q, want %q", route.AsString(), "/{text}")
	}
	if hist.DataPoints[0].Count != 2 {
		t.Errorf("count = %d, want 2", hist.DataPoints[0].Count)
	}
}
