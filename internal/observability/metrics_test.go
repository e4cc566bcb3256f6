package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func histogramSampleCount(t *testing.T, reg prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveFetch("planets", "ok", 20*time.Millisecond)
	c.ObserveFetch("planets", "rate_limited", time.Millisecond)
	c.ObserveFetch("planets", "ok", 30*time.Millisecond)

	if got := testutil.ToFloat64(c.FetchRequests.WithLabelValues("planets", "ok")); got != 2 {
		t.Fatalf("ok fetches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.FetchRequests.WithLabelValues("planets", "rate_limited")); got != 1 {
		t.Fatalf("rate limited fetches = %v, want 1", got)
	}
	if n := histogramSampleCount(t, reg, "warmonitor_fetch_duration_seconds", map[string]string{"source": "planets"}); n != 3 {
		t.Fatalf("duration samples = %d, want 3", n)
	}
}

func TestCycleAndBackoffGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveCycle("fast", "partial", time.Second)
	if got := testutil.ToFloat64(c.Cycles.WithLabelValues("fast", "partial")); got != 1 {
		t.Fatalf("cycles = %v, want 1", got)
	}

	at := time.Unix(1700000045, 0)
	c.SetBackoff("fast", at)
	if got := testutil.ToFloat64(c.BackoffResume.WithLabelValues("fast")); got != 1700000045 {
		t.Fatalf("resume = %v", got)
	}
	c.SetBackoff("fast", time.Time{})
	if got := testutil.ToFloat64(c.BackoffResume.WithLabelValues("fast")); got != 0 {
		t.Fatalf("resume after clear = %v", got)
	}

	c.SetModelSizes(260, 12, 40)
	if got := testutil.ToFloat64(c.PlanetsTotal); got != 260 {
		t.Fatalf("planets = %v", got)
	}
}

func TestNewCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	first.ObserveFetch("war", "ok", time.Millisecond)
	if got := testutil.ToFloat64(second.FetchRequests.WithLabelValues("war", "ok")); got != 1 {
		t.Fatalf("collectors should share series, got %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveFetch("x", "ok", time.Second)
	c.ObserveCycle("fast", "ok", time.Second)
	c.SetBackoff("fast", time.Now())
	c.SetModelSizes(1, 2, 3)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector gatherer should be nil")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveFetch("campaigns", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `warmonitor_fetch_requests_total{outcome="ok",source="campaigns"} 1`) {
		t.Fatalf("metrics body missing counter:\n%s", body)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}
