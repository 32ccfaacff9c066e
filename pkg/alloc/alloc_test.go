package alloc

import (
	"errors"
	"slices"
	"testing"
)

func TestAllocator_GrowsFromZero(t *testing.T) {
	a := New()

	for want := uint64(0); want < 5; want++ {
		slot, fresh := a.Allocate()
		if slot != want || !fresh {
			t.Fatalf("Allocate() = (%d, %v), want (%d, true)", slot, fresh, want)
		}
	}

	if a.Capacity() != 5 || a.Live() != 5 || a.FreeCount() != 0 {
		t.Errorf("capacity=%d live=%d free=%d, want 5/5/0", a.Capacity(), a.Live(), a.FreeCount())
	}
}

func TestAllocator_ReusesSmallestFreeSlot(t *testing.T) {
	a := New()
	for i := 0; i < 10; i++ {
		a.Allocate()
	}

	for _, slot := range []uint64{7, 2, 5} {
		if err := a.Free(slot); err != nil {
			t.Fatalf("Free(%d) error = %v", slot, err)
		}
	}

	if got := a.FreeSlots(); !slices.Equal(got, []uint64{2, 5, 7}) {
		t.Errorf("FreeSlots() = %v, want [2 5 7]", got)
	}

	peek, fresh := a.Peek()
	if peek != 2 || fresh {
		t.Errorf("Peek() = (%d, %v), want (2, false)", peek, fresh)
	}

	for _, want := range []uint64{2, 5, 7, 10} {
		slot, _ := a.Allocate()
		if slot != want {
			t.Errorf("Allocate() = %d, want %d", slot, want)
		}
	}

	if err := a.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestAllocator_FreeErrors(t *testing.T) {
	a := New()
	a.Allocate()
	a.Allocate()

	if err := a.Free(1); err != nil {
		t.Fatalf("Free(1) error = %v", err)
	}

	tests := []struct {
		name string
		slot uint64
		want error
	}{
		{"double free", 1, ErrAlreadyFree},
		{"never allocated", 9, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := a.CanFree(tt.slot); !errors.Is(err, tt.want) {
				t.Errorf("CanFree(%d) error = %v, want %v", tt.slot, err, tt.want)
			}
			if err := a.Free(tt.slot); !errors.Is(err, tt.want) {
				t.Errorf("Free(%d) error = %v, want %v", tt.slot, err, tt.want)
			}
		})
	}

	if a.Live() != 1 || a.FreeCount() != 1 {
		t.Errorf("failed frees changed state: live=%d free=%d", a.Live(), a.FreeCount())
	}
	if err := a.CanFree(0); err != nil {
		t.Errorf("CanFree(0) error = %v", err)
	}
	if a.Live() != 1 {
		t.Errorf("CanFree changed live count to %d", a.Live())
	}
}

func TestAllocator_LiveAndFree(t *testing.T) {
	a := New()
	a.Allocate()
	a.Allocate()
	_ = a.Free(0)

	if a.IsLive(0) || !a.IsFree(0) {
		t.Error("slot 0 should be free")
	}
	if !a.IsLive(1) || a.IsFree(1) {
		t.Error("slot 1 should be live")
	}
	if a.IsLive(2) || a.IsFree(2) {
		t.Error("slot 2 was never allocated")
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint64
		live     uint64
		free     []uint64
		wantErr  bool
	}{
		{"empty", 0, 0, nil, false},
		{"all live", 10, 10, nil, false},
		{"with holes", 10, 7, []uint64{9, 1, 4}, false},
		{"two holes", 10, 8, []uint64{1, 4}, false},
		{"too few free", 10, 5, []uint64{1}, true},
		{"duplicate", 10, 8, []uint64{3, 3}, true},
		{"beyond capacity", 10, 9, []uint64{10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Restore(tt.capacity, tt.live, tt.free)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Restore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInconsistent) {
					t.Errorf("Restore() error = %v, want ErrInconsistent", err)
				}
				return
			}
			if a.Capacity() != tt.capacity || a.Live() != tt.live {
				t.Errorf("restored capacity=%d live=%d", a.Capacity(), a.Live())
			}
		})
	}
}

func TestRestore_AllocatesFromRecoveredList(t *testing.T) {
	a, err := Restore(10, 7, []uint64{9, 1, 4})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	var got []uint64
	for i := 0; i < 4; i++ {
		slot, _ := a.Allocate()
		got = append(got, slot)
	}
	if !slices.Equal(got, []uint64{1, 4, 9, 10}) {
		t.Errorf("allocation order = %v, want [1 4 9 10]", got)
	}
}
