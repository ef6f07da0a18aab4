// Package metrics exposes the proxy's own Prometheus counters/histograms,
// generalizing the teacher's bare promhttp.Handler() registration in
// main.go into a dedicated registry plus a small set of instruments tied
// to the pipeline stages spec.md calls out: requests received, fixes
// applied, synthesized chunk sizes and context-window pressure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's own instruments, registered against a private
// registry rather than prometheus.DefaultRegisterer so tests can construct
// isolated instances without colliding on global state.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	FixAppliedTotal    *prometheus.CounterVec
	SynthesisChunkSize prometheus.Histogram
	ContextPercent     *prometheus.GaugeVec
	RequestDuration    *prometheus.HistogramVec
	ExporterDropped    prometheus.Counter
}

// New builds a Metrics instance registered against its own private
// *prometheus.Registry, the same pattern the teacher's main.go uses at
// process scope but scoped here to one value so callers can wire it
// explicitly instead of relying on package-level global state.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llamaproxy_requests_total",
			Help: "Total inbound requests handled, labeled by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FixAppliedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llamaproxy_fix_applied_total",
			Help: "Total times a named response fix actually modified a response or chunk.",
		}, []string{"fix"}),
		SynthesisChunkSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llamaproxy_synthesis_chunk_bytes",
			Help:    "Size in bytes of each synthesized streaming chunk emitted to clients.",
			Buckets: prometheus.ExponentialBuckets(8, 2, 10),
		}),
		ContextPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llamaproxy_context_percent",
			Help: "Most recently observed context usage (timings cache_n, else prompt_n) as a percentage of the backend's context window.",
		}, []string{"model"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llamaproxy_request_duration_seconds",
			Help:    "End-to-end request handling duration, labeled by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ExporterDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llamaproxy_exporter_dropped_total",
			Help: "Total RequestMetrics dropped because an exporter's queue was full.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.FixAppliedTotal,
		m.SynthesisChunkSize,
		m.ContextPercent,
		m.RequestDuration,
		m.ExporterDropped,
	)

	return m
}

// Registry returns the private registry so callers can mount
// promhttp.HandlerFor at the proxy-owned metrics path. Unlike the
// teacher's main.go, this is deliberately NOT served at /metrics: that
// path is reserved for upstream pass-through (spec.md's external
// interface table lists /metrics among the opaque forwarded paths), so
// the proxy's own instruments are exposed at /proxy/metrics instead.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving this Metrics' instruments in
// Prometheus text exposition format, meant to be mounted at a
// proxy-owned path rather than the pass-through /metrics (see the
// package doc comment and DESIGN.md for why the two are kept separate).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
