package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStorageMetrics() {
	r.Pages = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bfi_pages",
			Help: "Pages in the index file",
		},
	)

	r.PagesFlushed = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "bfi_pages_flushed_total",
			Help: "Dirty pages written by sync",
		},
	)

	r.PageEvictions = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfi_page_evictions_total",
			Help: "Page cache evictions by result; held means dirty pages kept until sync",
		},
		[]string{"result"},
	)

	r.PageCacheLookups = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfi_page_cache_lookups_total",
			Help: "Page cache lookups by result",
		},
		[]string{"result"},
	)

	r.SyncDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bfi_sync_duration_seconds",
			Help:    "Time spent flushing pages and header to stable storage",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
}
