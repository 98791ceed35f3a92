// Package metrics exposes Prometheus instrumentation for the dashboard
// server: lineage resolution outcomes, snapshot sizes, refreshes and HTTP
// request counts. Collectors live on a private registry so tests and
// multiple servers in one process never collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leapstack-labs/qcops/internal/dataset"
)

const namespace = "qcops"

// Metrics holds every collector.
type Metrics struct {
	registry *prometheus.Registry

	lineage    *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	lots       *prometheus.GaugeVec
	deviations *prometheus.GaugeVec
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		lineage: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lineage_resolutions_total",
			Help:      "Lineage resolutions by outcome",
		}, []string{"outcome"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_refreshes_total",
			Help:      "Dataset snapshot rebuilds by result",
		}, []string{"result"}),
		lots: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lots",
			Help:      "Lots in the current snapshot by status",
		}, []string{"status"}),
		deviations: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deviations",
			Help:      "Deviations in the current snapshot by status",
		}, []string{"status"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveLineage counts one resolution outcome. It matches the signature of
// dataset.Options.ResolveObserver.
func (m *Metrics) ObserveLineage(outcome string) {
	m.lineage.WithLabelValues(outcome).Inc()
}

// ObserveRefresh counts a refresh attempt.
func (m *Metrics) ObserveRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// ObserveSnapshot resets the size gauges to describe snap.
func (m *Metrics) ObserveSnapshot(snap *dataset.Snapshot) {
	if snap == nil {
		return
	}
	m.lots.Reset()
	for _, l := range snap.Lots() {
		m.lots.WithLabelValues(string(l.Status)).Inc()
	}
	m.deviations.Reset()
	for _, d := range snap.Deviations() {
		m.deviations.WithLabelValues(string(d.Status)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
