// Package alloc hands out slot numbers for an index file and tracks which
// of them are live, free for reuse, or not yet used.
package alloc

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrAlreadyFree  = errors.New("slot is already free")
	ErrOutOfRange   = errors.New("slot was never allocated")
	ErrInconsistent = errors.New("allocator counts disagree")
)

// Allocator tracks capacity (the high-water mark of slots ever handed out),
// the live record count, and the free list.
//
// Invariant: live + len(free) == capacity.
type Allocator struct {
	capacity uint64
	live     uint64
	free     slotHeap
	isFree   map[uint64]struct{}
}

// New creates an allocator for an empty file
func New() *Allocator {
	return &Allocator{
		isFree: make(map[uint64]struct{}),
	}
}

// Restore rebuilds an allocator from persisted header counts and the free
// slots recovered from the file.
func Restore(capacity, live uint64, free []uint64) (*Allocator, error) {
	a := New()
	a.capacity = capacity
	a.live = live

	for _, slot := range free {
		if slot >= capacity {
			return nil, fmt.Errorf("%w: free slot %d beyond capacity %d", ErrInconsistent, slot, capacity)
		}
		if _, dup := a.isFree[slot]; dup {
			return nil, fmt.Errorf("%w: slot %d listed twice", ErrInconsistent, slot)
		}
		a.isFree[slot] = struct{}{}
		a.free = append(a.free, slot)
	}
	heap.Init(&a.free)

	if err := a.Check(); err != nil {
		return nil, err
	}
	return a, nil
}

// Peek returns the slot the next Allocate call will hand out, and whether it
// lies past the current capacity.
func (a *Allocator) Peek() (slot uint64, fresh bool) {
	if len(a.free) > 0 {
		return a.free[0], false
	}
	return a.capacity, true
}

// Allocate hands out the smallest free slot, or grows capacity by one.
func (a *Allocator) Allocate() (slot uint64, fresh bool) {
	if len(a.free) > 0 {
		slot = heap.Pop(&a.free).(uint64)
		delete(a.isFree, slot)
		a.live++
		return slot, false
	}
	slot = a.capacity
	a.capacity++
	a.live++
	return slot, true
}

// CanFree reports the error Free would return for slot, without changing
// the allocator
func (a *Allocator) CanFree(slot uint64) error {
	if slot >= a.capacity {
		return fmt.Errorf("%w: slot %d, capacity %d", ErrOutOfRange, slot, a.capacity)
	}
	if _, ok := a.isFree[slot]; ok {
		return fmt.Errorf("%w: slot %d", ErrAlreadyFree, slot)
	}
	if a.live == 0 {
		return fmt.Errorf("%w: freeing slot %d with no live records", ErrInconsistent, slot)
	}
	return nil
}

// Free returns a live slot to the free list.
func (a *Allocator) Free(slot uint64) error {
	if err := a.CanFree(slot); err != nil {
		return err
	}
	heap.Push(&a.free, slot)
	a.isFree[slot] = struct{}{}
	a.live--
	return nil
}

// IsLive reports whether slot holds a record
func (a *Allocator) IsLive(slot uint64) bool {
	if slot >= a.capacity {
		return false
	}
	_, free := a.isFree[slot]
	return !free
}

// IsFree reports whether slot is on the free list
func (a *Allocator) IsFree(slot uint64) bool {
	_, ok := a.isFree[slot]
	return ok
}

func (a *Allocator) Capacity() uint64 { return a.capacity }
func (a *Allocator) Live() uint64     { return a.live }
func (a *Allocator) FreeCount() uint64 {
	return uint64(len(a.free))
}

// FreeSlots returns the free list in ascending order
func (a *Allocator) FreeSlots() []uint64 {
	out := slices.Clone([]uint64(a.free))
	slices.Sort(out)
	return out
}

// Check verifies that live and free slots partition the capacity.
func (a *Allocator) Check() error {
	if a.live+uint64(len(a.free)) != a.capacity {
		return fmt.Errorf("%w: live %d + free %d != capacity %d",
			ErrInconsistent, a.live, len(a.free), a.capacity)
	}
	return nil
}

// slotHeap is a min-heap of slot numbers
type slotHeap []uint64

func (h slotHeap) Len() int           { return len(h) }
func (h slotHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h slotHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *slotHeap) Push(x any) {
	*h = append(*h, x.(uint64))
}

func (h *slotHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
