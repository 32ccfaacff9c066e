package pools

import (
	"sync"
	"testing"
)

func TestBytePool_Get(t *testing.T) {
	pool := NewBytePool()

	tests := []struct {
		name   string
		size   int
		minCap int
	}{
		{"small", 100, 100},
		{"small_exact", SlotSmall, SlotSmall},
		{"medium", 300, 300},
		{"medium_exact", SlotMedium, SlotMedium},
		{"large", 1000, 1000},
		{"huge", 4000, 4000},
		{"max", 10000, 10000},
		{"oversized", 20000, 20000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pool.Get(tt.size)
			if len(b) != 0 {
				t.Errorf("Get(%d) length = %d, want 0", tt.size, len(b))
			}
			if cap(b) < tt.minCap {
				t.Errorf("Get(%d) capacity = %d, want >= %d", tt.size, cap(b), tt.minCap)
			}
		})
	}
}

func TestBytePool_GetZeroed(t *testing.T) {
	pool := NewBytePool()

	b := pool.GetZeroed(SlotMedium)
	for i := range b {
		b[i] = 0xFF
	}
	pool.Put(b)

	b = pool.GetZeroed(SlotMedium)
	if len(b) != SlotMedium {
		t.Fatalf("GetZeroed length = %d, want %d", len(b), SlotMedium)
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d = %#x after reuse, want 0", i, v)
		}
	}
}

func TestBytePool_PutUndersized(t *testing.T) {
	pool := NewBytePool()

	// A 300-byte buffer must not be handed out for a 512-byte request
	pool.Put(make([]byte, 0, 300))
	for i := 0; i < 10; i++ {
		if b := pool.Get(SlotMedium); cap(b) < SlotMedium {
			t.Fatalf("Get(%d) capacity = %d", SlotMedium, cap(b))
		}
	}
}

func TestBytePool_Concurrent(t *testing.T) {
	pool := NewBytePool()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				b := pool.GetZeroed(SlotMedium)
				b[0] = byte(i)
				pool.Put(b)
			}
		}()
	}
	wg.Wait()
}

func TestPagePool(t *testing.T) {
	pool := NewPagePool(4096)

	b := pool.Get()
	if len(b) != 4096 {
		t.Fatalf("Get() length = %d, want 4096", len(b))
	}
	b[10] = 1
	pool.Put(b)

	b = pool.Get()
	if b[10] != 0 {
		t.Error("page buffer not cleared on reuse")
	}

	// Wrong size is silently dropped
	pool.Put(make([]byte, 100))
	if got := pool.Get(); len(got) != 4096 {
		t.Errorf("Get() after bad Put length = %d", len(got))
	}
}
