package pools

import (
	"sync"
)

// Size classes match the slot sizes an index is usually created with
const (
	SlotSmall  = 256
	SlotMedium = 512
	SlotLarge  = 1024
	SlotHuge   = 4096
	MaxPool    = 16384 // buffers above this are not pooled
)

// BytePool provides size-class based pooling for byte slices.
type BytePool struct {
	small  sync.Pool // <= 256 bytes
	medium sync.Pool // <= 512 bytes
	large  sync.Pool // <= 1024 bytes
	huge   sync.Pool // <= 4096 bytes
	max    sync.Pool // <= 16384 bytes
}

func newClass(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			b := make([]byte, 0, size)
			return &b
		},
	}
}

// NewBytePool creates a byte pool with one sync.Pool per size class.
func NewBytePool() *BytePool {
	return &BytePool{
		small:  newClass(SlotSmall),
		medium: newClass(SlotMedium),
		large:  newClass(SlotLarge),
		huge:   newClass(SlotHuge),
		max:    newClass(MaxPool),
	}
}

func (p *BytePool) class(size int) *sync.Pool {
	switch {
	case size <= SlotSmall:
		return &p.small
	case size <= SlotMedium:
		return &p.medium
	case size <= SlotLarge:
		return &p.large
	case size <= SlotHuge:
		return &p.huge
	case size <= MaxPool:
		return &p.max
	default:
		return nil
	}
}

// Get returns a byte slice with length 0 and at least the requested capacity.
func (p *BytePool) Get(size int) []byte {
	pool := p.class(size)
	if pool == nil {
		return make([]byte, 0, size)
	}

	bp, ok := pool.Get().(*[]byte)
	if !ok || cap(*bp) < size {
		return make([]byte, 0, size)
	}
	return (*bp)[:0]
}

// GetZeroed returns a zero-filled byte slice of exactly size bytes.
func (p *BytePool) GetZeroed(size int) []byte {
	b := p.Get(size)[:size]
	clear(b)
	return b
}

// Put returns a byte slice to the pool. The class is chosen by capacity so a
// buffer never lands in a class larger than it can serve.
func (p *BytePool) Put(b []byte) {
	c := cap(b)
	if c > MaxPool {
		return
	}

	var pool *sync.Pool
	switch {
	case c >= MaxPool:
		pool = &p.max
	case c >= SlotHuge:
		pool = &p.huge
	case c >= SlotLarge:
		pool = &p.large
	case c >= SlotMedium:
		pool = &p.medium
	case c >= SlotSmall:
		pool = &p.small
	default:
		return
	}

	b = b[:0]
	pool.Put(&b)
}
