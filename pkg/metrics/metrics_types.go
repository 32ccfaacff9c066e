package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics exported by an index process
type Registry struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Index metrics
	Records       prometheus.Gauge
	Capacity      prometheus.Gauge
	FreeSlots     prometheus.Gauge
	FileSizeBytes prometheus.Gauge

	// Query metrics
	LookupCandidates     prometheus.Histogram
	LookupMatches        prometheus.Histogram
	LookupFalsePositives prometheus.Counter

	// Storage metrics
	Pages            prometheus.Gauge
	PagesFlushed     prometheus.Counter
	PageEvictions    *prometheus.CounterVec
	PageCacheLookups *prometheus.CounterVec
	SyncDuration     prometheus.Histogram

	// System metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry  *prometheus.Registry
	startTime time.Time
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric registered on a private
// prometheus registry, so several can coexist in one process (tests).
func NewRegistry() *Registry {
	r := &Registry{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	r.initIndexMetrics()
	r.initQueryMetrics()
	r.initStorageMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
