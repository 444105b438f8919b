package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is shared by every session's client; labels stay on the first
// key segment so cardinality does not grow with ids.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	invalidations prometheus.Counter
	evictions     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ponyexpress",
			Subsystem: "query",
			Name:      "hits_total",
			Help:      "Reads served from fresh cache entries.",
		}, []string{"resource"}),
		misses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ponyexpress",
			Subsystem: "query",
			Name:      "misses_total",
			Help:      "Reads that needed a fetch.",
		}, []string{"resource"}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ponyexpress",
			Subsystem: "query",
			Name:      "fetch_errors_total",
			Help:      "Fetches that returned an error.",
		}, []string{"resource"}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ponyexpress",
			Subsystem: "query",
			Name:      "invalidated_entries_total",
			Help:      "Cache entries marked stale by invalidation.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ponyexpress",
			Subsystem: "query",
			Name:      "evicted_entries_total",
			Help:      "Cache entries dropped after going unused.",
		}),
	}
}

func resource(k Key) string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

func (m *Metrics) hit(k Key) {
	if m != nil {
		m.hits.WithLabelValues(resource(k)).Inc()
	}
}

func (m *Metrics) miss(k Key) {
	if m != nil {
		m.misses.WithLabelValues(resource(k)).Inc()
	}
}

func (m *Metrics) fetchError(k Key) {
	if m != nil {
		m.fetchErrors.WithLabelValues(resource(k)).Inc()
	}
}

func (m *Metrics) invalidated(n int) {
	if m != nil && n > 0 {
		m.invalidations.Add(float64(n))
	}
}

func (m *Metrics) evicted(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(float64(n))
	}
}
