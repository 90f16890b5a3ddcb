// Package metrics exposes console Prometheus metrics: backend call outcomes
// and latencies, toasts shown, active sessions and chart renders.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keydeck/keydeck/internal/backend"
)

// Metrics collects console metrics on its own registry. All methods are
// safe on a nil receiver so metrics can be disabled by passing nil.
type Metrics struct {
	registry        *prometheus.Registry
	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	toasts          *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	chartRenders    *prometheus.CounterVec
	backendHealthy  prometheus.Gauge
}

// New creates a metrics collector with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		backendRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keydeck_backend_requests_total",
				Help: "Backend API calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		backendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keydeck_backend_request_duration_seconds",
				Help:    "Backend API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		toasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keydeck_toasts_total",
				Help: "Toast notifications shown, by level",
			},
			[]string{"level"},
		),
		sessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "keydeck_sessions_active",
				Help: "Console sessions currently held in memory",
			},
		),
		chartRenders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keydeck_chart_renders_total",
				Help: "Chart renders by chart name and result",
			},
			[]string{"chart", "result"},
		),
		backendHealthy: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "keydeck_backend_healthy",
				Help: "Last observed backend health (1 = healthy, 0 = not)",
			},
		),
	}
}

// ObserveCall implements backend.Observer.
func (m *Metrics) ObserveCall(endpoint string, outcome backend.Outcome, d time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	m.backendRequests.WithLabelValues(endpoint, string(outcome)).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Toast counts a toast shown at level.
func (m *Metrics) Toast(level string) {
	if m == nil {
		return
	}
	m.toasts.WithLabelValues(level).Inc()
}

// SetSessions updates the active sessions gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// ChartRendered counts a chart render. result is "ok", "empty" or "error".
func (m *Metrics) ChartRendered(chart, result string) {
	if m == nil {
		return
	}
	m.chartRenders.WithLabelValues(chart, result).Inc()
}

// BackendHealth records the last health check.
func (m *Metrics) BackendHealth(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.backendHealthy.Set(1)
	} else {
		m.backendHealthy.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
