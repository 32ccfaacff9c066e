package metrics

import (
	"runtime"
	"time"
)

// All Record/Set helpers accept a nil *Registry so callers can leave
// metrics disabled without guarding every call.

// RecordOperation records an index operation and its duration
func (r *Registry) RecordOperation(operation string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLookup records the candidate and verified counts of one lookup
func (r *Registry) RecordLookup(candidates, matches int) {
	if r == nil {
		return
	}
	r.LookupCandidates.Observe(float64(candidates))
	r.LookupMatches.Observe(float64(matches))
	if fp := candidates - matches; fp > 0 {
		r.LookupFalsePositives.Add(float64(fp))
	}
}

// RecordSync records a flush of dirty pages
func (r *Registry) RecordSync(pagesFlushed int, duration time.Duration) {
	if r == nil {
		return
	}
	r.PagesFlushed.Add(float64(pagesFlushed))
	r.SyncDuration.Observe(duration.Seconds())
}

// RecordEviction records a clean page leaving the page cache, or with held
// set, an over-bound cache that had only dirty pages left to give up
func (r *Registry) RecordEviction(held bool) {
	if r == nil {
		return
	}
	if held {
		r.PageEvictions.WithLabelValues("held").Inc()
	} else {
		r.PageEvictions.WithLabelValues("evicted").Inc()
	}
}

// RecordCacheLookup records a page cache hit or miss
func (r *Registry) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.PageCacheLookups.WithLabelValues("hit").Inc()
	} else {
		r.PageCacheLookups.WithLabelValues("miss").Inc()
	}
}

// UpdateIndexMetrics sets the gauges describing the open index
func (r *Registry) UpdateIndexMetrics(records, capacity, free, pages uint64, sizeBytes int64) {
	if r == nil {
		return
	}
	r.Records.Set(float64(records))
	r.Capacity.Set(float64(capacity))
	r.FreeSlots.Set(float64(free))
	r.Pages.Set(float64(pages))
	r.FileSizeBytes.Set(float64(sizeBytes))
}

// UpdateSystemMetrics refreshes uptime and Go runtime gauges
func (r *Registry) UpdateSystemMetrics() {
	if r == nil {
		return
	}
	r.UptimeSeconds.Set(time.Since(r.startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}
