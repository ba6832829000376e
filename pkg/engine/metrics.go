package engine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "triplestream"

type metrics struct {
	triples       prometheus.Counter
	partials      prometheus.Counter
	solutions     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	expired       prometheus.Counter
	subscriptions prometheus.Gauge
	entries       prometheus.GaugeFunc
}

func newMetrics(idx *index) *metrics {
	return &metrics{
		triples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "triples_total",
			Help:      "Number of triples ingested.",
		}),
		partials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "partial_results_created_total",
			Help:      "Number of partial results created by successful unifications.",
		}),
		solutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "solutions_total",
			Help:      "Number of solutions handed to subscriptions.",
		}, []string{"query"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "solutions_dropped_total",
			Help:      "Number of solutions dropped on a full delivery queue.",
		}, []string{"query"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_errors_total",
			Help:      "Number of failed result handler invocations.",
		}, []string{"query"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "index_entries_expired_total",
			Help:      "Number of index entries removed by the expiry sweep.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscriptions",
			Help:      "Number of registered subscriptions.",
		}),
		entries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "index_entries",
			Help:      "Number of live index entries.",
		}, func() float64 { return float64(idx.size()) }),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.triples, m.partials, m.solutions, m.dropped,
		m.handlerErrors, m.expired, m.subscriptions, m.entries}
}

// register adds the collectors to the registerer. Each engine needs its own registry.
func (m *metrics) register(r prometheus.Registerer) error {
	if r == nil {
		return nil
	}
	for i, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			for _, done := range m.collectors()[:i] {
				r.Unregister(done)
			}
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return nil
}

func (m *metrics) unregister(r prometheus.Registerer) {
	if r == nil {
		return
	}
	for _, c := range m.collectors() {
		r.Unregister(c)
	}
}
