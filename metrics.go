package pagecache

import (
	"github.com/always-cache/pagecache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes, as counted by pagecache_requests_total.
const (
	outcomeFresh  = "fresh"
	outcomeStale  = "stale"
	outcomeMiss   = "miss"
	outcomeBypass = "bypass"
	outcomeEscape = "escape"
)

type metrics struct {
	requests        *prometheus.CounterVec
	stores          prometheus.Counter
	refreshes       *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	refreshDuration prometheus.Histogram
}

// newMetrics registers the cache collectors with reg.
// A nil reg gets a private registry, so several caches can live in one process.
func newMetrics(reg prometheus.Registerer, store cache.Store) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	m := &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pagecache_requests_total",
			Help: "Requests handled by the page cache, by outcome.",
		}, []string{"outcome"}),
		stores: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagecache_stores_total",
			Help: "Pages written to the cache store.",
		}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pagecache_refreshes_total",
			Help: "Background regenerations, by result.",
		}, []string{"result"}),
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pagecache_invalidations_total",
			Help: "Invalidation calls, by kind.",
		}, []string{"kind"}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagecache_refresh_duration_seconds",
			Help:    "Time spent regenerating a page.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pagecache_entries",
		Help: "Pages currently held by the cache store.",
	}, func() float64 {
		return float64(store.Len())
	})
	// pre-create label values so they are exported before the first event
	for _, outcome := range []string{outcomeFresh, outcomeStale, outcomeMiss, outcomeBypass, outcomeEscape} {
		m.requests.WithLabelValues(outcome)
	}
	for _, result := range []string{"success", "failure", "skipped"} {
		m.refreshes.WithLabelValues(result)
	}
	return m
}

func (m *metrics) request(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *metrics) refresh(result string) {
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *metrics) invalidation(kind string) {
	m.invalidations.WithLabelValues(kind).Inc()
}
