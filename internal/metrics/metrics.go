// Package metrics holds the Prometheus instrumentation for the bridge.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the signal bridge.
type Metrics struct {
	SignalsTotal    *prometheus.CounterVec // labels: kind, outcome
	OrdersTotal     *prometheus.CounterVec // labels: side, status
	SignalDuration  prometheus.Histogram
	DuplicateAlerts prometheus.Counter
}

// New registers and returns the bridge metrics on reg. Passing a private
// registry keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_signals_total",
			Help: "Signals processed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_orders_total",
			Help: "Broker orders placed, by side and status",
		}, []string{"side", "status"}),
		SignalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_signal_duration_seconds",
			Help:    "End-to-end signal handling latency, lock wait included",
			Buckets: prometheus.DefBuckets,
		}),
		DuplicateAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_duplicate_alerts_total",
			Help: "Signals suppressed by the alert-ID dedupe guard",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.SignalsTotal, m.OrdersTotal, m.SignalDuration, m.DuplicateAlerts)
	}
	return m
}
