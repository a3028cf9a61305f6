// Package metrics exposes the server's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gatekeeper"

type Metrics struct {
	registry *prometheus.Registry

	sweeps        *prometheus.CounterVec
	sweptUsers    *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	rpcs          *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	codesIssued   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Cleanup sweeps run, by result.",
		}, []string{"result"}),
		sweptUsers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_users_total",
			Help:      "Unverified users handled by the cleanup sweep, by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a cleanup sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Handled RPCs, by method and status code.",
		}, []string{"method", "code"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_deliveries_total",
			Help:      "Verification code deliveries, by outcome.",
		}, []string{"outcome"}),
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "Verification codes issued, by purpose.",
		}, []string{"purpose"}),
	}

	m.registry.MustRegister(
		m.sweeps, m.sweptUsers, m.sweepDuration, m.rpcs, m.deliveries, m.codesIssued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveSweep(deleted, skipped int, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.sweptUsers.WithLabelValues("deleted").Add(float64(deleted))
	m.sweptUsers.WithLabelValues("skipped").Add(float64(skipped))
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRPC(method, code string) {
	if m == nil {
		return
	}
	m.rpcs.WithLabelValues(method, code).Inc()
}

// ObserveDelivery takes "sent", "failed" or "dropped".
func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(purpose).Inc()
}
