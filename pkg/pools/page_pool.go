package pools

import (
	"sync"
)

// PagePool recycles page-sized buffers. All buffers share one size, fixed
// when the pool is created.
type PagePool struct {
	size int
	pool sync.Pool
}

// NewPagePool creates a pool of size-byte buffers
func NewPagePool(size int) *PagePool {
	p := &PagePool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size returns the buffer size served by the pool
func (p *PagePool) Size() int {
	return p.size
}

// Get returns a zero-filled page buffer
func (p *PagePool) Get() []byte {
	bp := p.pool.Get().(*[]byte)
	b := *bp
	clear(b)
	return b
}

// Put returns a page buffer. Buffers of the wrong size are dropped.
func (p *PagePool) Put(b []byte) {
	if cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
