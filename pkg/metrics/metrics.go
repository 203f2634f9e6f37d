// Package metrics exposes resolution counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "media_resolver"

// Outcome labels for Resolutions.
const (
	OutcomePrimary  = "primary"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// Metrics holds the collectors of one server instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	resolutions *prometheus.CounterVec
	stages      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rateLimited prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "resolutions_total", Help: "Resolution requests by platform and outcome"},
			[]string{"platform", "outcome"},
		),
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "fallback_stage_total", Help: "Fallback stage runs by stage and result"},
			[]string{"stage", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Time spent resolving a URL",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"platform"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "rate_limited_total", Help: "Requests rejected by the rate limiter"},
		),
	}

	m.registry.MustRegister(
		m.resolutions,
		m.stages,
		m.duration,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveResolution records one finished resolution.
func (m *Metrics) ObserveResolution(platform, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(platform, outcome).Inc()
	m.duration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// ObserveStage records one fallback stage run.
func (m *Metrics) ObserveStage(stage string, found bool) {
	if m == nil {
		return
	}
	result := "miss"
	if found {
		result = "hit"
	}
	m.stages.WithLabelValues(stage, result).Inc()
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
