// Package metrics holds the Prometheus collectors for the access engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry so tests can build as many as they like
// without colliding on the default registerer.
type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal        *prometheus.CounterVec // by source, status
	DecisionsTotal     *prometheus.CounterVec // by outcome, reason
	EventDuration      prometheus.Histogram
	SideEffectFailures *prometheus.CounterVec // by step
	UnlocksTotal       *prometheus.CounterVec // by transport, result
	PollCyclesTotal    *prometheus.CounterVec // by result
	ObserversConnected prometheus.Gauge
	RecordsPruned      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_events_total",
			Help: "Lock events handled, by source and terminal status",
		}, []string{"source", "status"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_decisions_total",
			Help: "Access decisions emitted, by outcome and denial reason",
		}, []string{"outcome", "reason"}),
		EventDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lockgate_event_processing_duration_seconds",
			Help:    "Time from event receipt to dispatch completion",
			Buckets: prometheus.DefBuckets,
		}),
		SideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_side_effect_failures_total",
			Help: "Best-effort side effects that failed, by step",
		}, []string{"step"}),
		UnlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_unlocks_total",
			Help: "Unlock attempts, by transport and result",
		}, []string{"transport", "result"}),
		PollCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lockgate_poll_cycles_total",
			Help: "Poll ticks, by result (ok, error, skipped)",
		}, []string{"result"}),
		ObserversConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lockgate_observers_connected",
			Help: "Currently connected bridge observers",
		}),
		RecordsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lockgate_access_records_pruned_total",
			Help: "Access records deleted by the retention pruner",
		}),
	}

	m.Registry.MustRegister(
		m.EventsTotal,
		m.DecisionsTotal,
		m.EventDuration,
		m.SideEffectFailures,
		m.UnlocksTotal,
		m.PollCyclesTotal,
		m.ObserversConnected,
		m.RecordsPruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
