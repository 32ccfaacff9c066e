package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIndexMetrics() {
	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfi_operations_total",
			Help: "Total number of index operations",
		},
		[]string{"operation", "status"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bfi_operation_duration_seconds",
			Help:    "Index operation duration in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	r.Records = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bfi_records",
			Help: "Live records in the index",
		},
	)

	r.Capacity = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bfi_capacity_slots",
			Help: "Slots ever allocated in the index file",
		},
	)

	r.FreeSlots = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bfi_free_slots",
			Help: "Reclaimed slots waiting for reuse",
		},
	)

	r.FileSizeBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bfi_file_size_bytes",
			Help: "Size of the index file in bytes",
		},
	)
}
