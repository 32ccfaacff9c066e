package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initQueryMetrics() {
	r.LookupCandidates = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bfi_lookup_candidates",
			Help:    "Slots whose signature matched the lookup mask",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	r.LookupMatches = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bfi_lookup_matches",
			Help:    "Records returned by a lookup after verification",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	r.LookupFalsePositives = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "bfi_lookup_false_positives_total",
			Help: "Candidates rejected by payload verification",
		},
	)
}
