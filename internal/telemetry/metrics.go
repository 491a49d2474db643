// Package telemetry exports transaction engine metrics to Prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/idbtx/internal/idb"
)

// Metrics counts transaction and request outcomes. It implements
// idb.Observer and is passed to idb.NewDatabase with idb.WithObserver.
type Metrics struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	requests *prometheus.CounterVec
}

var _ idb.Observer = (*Metrics)(nil)

// NewMetrics creates the counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idbtx_transactions_started_total",
			Help: "Total number of transactions whose driver loop started",
		}, []string{"mode"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idbtx_transactions_finished_total",
			Help: "Total number of finished transactions by outcome",
		}, []string{"mode", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idbtx_requests_total",
			Help: "Total number of executed requests by outcome",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{m.started, m.finished, m.requests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TransactionStarted implements idb.Observer.
func (m *Metrics) TransactionStarted(mode idb.Mode) {
	m.started.WithLabelValues(mode.String()).Inc()
}

// TransactionFinished implements idb.Observer.
func (m *Metrics) TransactionFinished(mode idb.Mode, outcome idb.Outcome) {
	m.finished.WithLabelValues(mode.String(), string(outcome)).Inc()
}

// RequestCompleted implements idb.Observer.
func (m *Metrics) RequestCompleted(outcome idb.Outcome) {
	m.requests.WithLabelValues(string(outcome)).Inc()
}
