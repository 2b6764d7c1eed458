// Package metrics exposes the engine's Prometheus collectors. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	ticksDropped  prometheus.Counter
	storageErrors prometheus.Counter
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	scheduled     prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry: registry,

		probes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pingwatch_probes_total",
				Help: "Probes completed, by protocol and outcome",
			},
			[]string{"protocol", "status"},
		),
		probeDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pingwatch_probe_duration_seconds",
				Help:    "Wall time of a probe including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		ticksDropped: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "pingwatch_scheduler_ticks_dropped_total",
				Help: "Ticks skipped because the previous probe was still running",
			},
		),
		storageErrors: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "pingwatch_storage_errors_total",
				Help: "Observations that could not be appended",
			},
		),
		transitions: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pingwatch_state_changes_total",
				Help: "Target status transitions, by new status",
			},
			[]string{"status"},
		),
		notifications: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pingwatch_notifications_total",
				Help: "Notification deliveries, by result",
			},
			[]string{"result"},
		),
		scheduled: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "pingwatch_targets_scheduled",
				Help: "Targets currently owned by the scheduler",
			},
		),
	}
}

func (m *Metrics) ObserveProbe(protocol, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(protocol, status).Inc()
	m.probeDuration.WithLabelValues(protocol).Observe(d.Seconds())
}

func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.ticksDropped.Inc()
}

func (m *Metrics) StorageError() {
	if m == nil {
		return
	}
	m.storageErrors.Inc()
}

func (m *Metrics) StateChange(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// Notification records a delivery result: sent, failed or dropped.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) SetScheduled(n int) {
	if m == nil {
		return
	}
	m.scheduled.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
