// Package metrics holds the Prometheus collectors for capability caches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache counts what happens behind a single cached capability.
// A nil *Cache is valid and records nothing.
type Cache struct {
	Hits          prometheus.Counter
	Recomputes    prometheus.Counter
	ProbeErrors   prometheus.Counter
	ProbeDuration prometheus.Histogram
}

// NewCache registers the collectors for the capability named by key
// (e.g. "similarity.search.active") on reg.
func NewCache(reg prometheus.Registerer, namespace, key string) *Cache {
	f := promauto.With(reg)
	labels := prometheus.Labels{"capability": key}
	return &Cache{
		Hits: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capability_cache_hits_total",
			Help:        "Reads served from the cached capability value",
			ConstLabels: labels,
		}),
		Recomputes: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capability_recomputes_total",
			Help:        "Times the capability value was recomputed",
			ConstLabels: labels,
		}),
		ProbeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capability_probe_errors_total",
			Help:        "Probes that failed and were cached as an error description",
			ConstLabels: labels,
		}),
		ProbeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "capability_probe_duration_seconds",
			Help:        "Probe latency in seconds",
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			ConstLabels: labels,
		}),
	}
}

func (m *Cache) Hit() {
	if m == nil {
		return
	}
	m.Hits.Inc()
}

func (m *Cache) Recomputed(took time.Duration) {
	if m == nil {
		return
	}
	m.Recomputes.Inc()
	m.ProbeDuration.Observe(took.Seconds())
}

func (m *Cache) ProbeFailed() {
	if m == nil {
		return
	}
	m.ProbeErrors.Inc()
}
