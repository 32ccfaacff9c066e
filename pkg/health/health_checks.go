package health

import (
	"fmt"
	"sync/atomic"

	"github.com/dd0wney/cluso-bfi/pkg/bfi"
)

// FragmentationThreshold is the share of free slots above which an index
// is reported as degraded
const FragmentationThreshold = 0.5

// IndexSnapshot holds the latest statistics of an index for checks that run
// on other goroutines. The owner of the index publishes; checks only read.
type IndexSnapshot struct {
	stat atomic.Pointer[bfi.Stat]
}

// Publish records st as the current state
func (s *IndexSnapshot) Publish(st bfi.Stat) {
	s.stat.Store(&st)
}

// Load returns the last published state
func (s *IndexSnapshot) Load() (bfi.Stat, bool) {
	st := s.stat.Load()
	if st == nil {
		return bfi.Stat{}, false
	}
	return *st, true
}

// IndexCheck reports an index as unhealthy until it has been opened, and as
// degraded when most of its slots are free
func IndexCheck(snap *IndexSnapshot) CheckFunc {
	return func() Check {
		st, ok := snap.Load()
		if !ok {
			return Check{Status: StatusUnhealthy, Message: "Index not open"}
		}

		check := Check{
			Details: map[string]any{
				"path":       st.Path,
				"records":    st.Records,
				"capacity":   st.Capacity,
				"free_slots": st.FreeSlots,
				"pages":      st.Pages,
				"read_only":  st.ReadOnly,
			},
		}

		var ratio float64
		if st.Capacity > 0 {
			ratio = float64(st.FreeSlots) / float64(st.Capacity)
		}
		check.Details["free_ratio"] = ratio

		if ratio > FragmentationThreshold {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%.0f%% of slots are free", ratio*100)
		} else {
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("%d records", st.Records)
		}
		return check
	}
}

// MemoryCheck reports degraded when allocated heap exceeds 90% of memory
// obtained from the OS
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		alloc, sys := getUsage()
		check := Check{
			Details: map[string]any{
				"alloc_bytes": alloc,
				"sys_bytes":   sys,
			},
		}

		if sys > 0 && float64(alloc)/float64(sys) > 0.9 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}
		return check
	}
}
