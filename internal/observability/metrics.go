package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes upstream fetch and cycle metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	FetchRequests  *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	Cycles         *prometheus.CounterVec
	CycleDuration  *prometheus.HistogramVec
	BackoffResume  *prometheus.GaugeVec
	PlanetsTotal   prometheus.Gauge
	CampaignsTotal prometheus.Gauge
	HistorySeries  prometheus.Gauge
}

// NewCollector registers metrics against reg, reusing collectors that are
// already registered under the same name.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fetchRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warmonitor_fetch_requests_total",
		Help: "Upstream fetches by source and outcome.",
	}, []string{"source", "outcome"}), "warmonitor_fetch_requests_total")
	if err != nil {
		return nil, err
	}

	fetchDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warmonitor_fetch_duration_seconds",
		Help:    "Duration of upstream fetches including decode.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"source"}), "warmonitor_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warmonitor_cycles_total",
		Help: "Completed poll cycles by stream and outcome.",
	}, []string{"stream", "outcome"}), "warmonitor_cycles_total")
	if err != nil {
		return nil, err
	}

	cycleDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warmonitor_cycle_duration_seconds",
		Help:    "Duration of a poll cycle from fetch start to commit.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stream"}), "warmonitor_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	backoffResume, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warmonitor_backoff_resume_timestamp_seconds",
		Help: "Unix time a rate limited stream resumes at, 0 when not backing off.",
	}, []string{"stream"}), "warmonitor_backoff_resume_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	planets, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warmonitor_planets",
		Help: "Planets in the published catalog.",
	}), "warmonitor_planets")
	if err != nil {
		return nil, err
	}

	campaigns, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warmonitor_campaigns",
		Help: "Active campaigns in the published model.",
	}), "warmonitor_campaigns")
	if err != nil {
		return nil, err
	}

	series, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warmonitor_history_series",
		Help: "Planets with a published history series.",
	}), "warmonitor_history_series")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		FetchRequests:  fetchRequests,
		FetchDuration:  fetchDuration,
		Cycles:         cycles,
		CycleDuration:  cycleDuration,
		BackoffResume:  backoffResume,
		PlanetsTotal:   planets,
		CampaignsTotal: campaigns,
		HistorySeries:  series,
	}, nil
}

func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveFetch(source, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.FetchRequests.WithLabelValues(source, outcome).Inc()
	c.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (c *Collector) ObserveCycle(stream, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(stream, outcome).Inc()
	c.CycleDuration.WithLabelValues(stream).Observe(d.Seconds())
}

// SetBackoff records when stream resumes; a zero time clears it.
func (c *Collector) SetBackoff(stream string, resumeAt time.Time) {
	if c == nil {
		return
	}
	if resumeAt.IsZero() {
		c.BackoffResume.WithLabelValues(stream).Set(0)
		return
	}
	c.BackoffResume.WithLabelValues(stream).Set(float64(resumeAt.Unix()))
}

func (c *Collector) SetModelSizes(planets, campaigns, series int) {
	if c == nil {
		return
	}
	c.PlanetsTotal.Set(float64(planets))
	c.CampaignsTotal.Set(float64(campaigns))
	c.HistorySeries.Set(float64(series))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
