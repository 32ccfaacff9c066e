package pagestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dd0wney/cluso-bfi/pkg/metrics"
)

const (
	testSlotSize = 64
	testSPP      = 4
)

func newTestStore(t *testing.T, opts Options) (*Store, Header, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bfi")
	h := NewHeader(VersionSlotAddressed, testSlotSize, testSPP, 128, 4)
	s, err := Create(path, h, opts)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s, h, path
}

func slotBytes(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, testSlotSize)
}

// writeSlots fills slots [0, n) with their slot number and returns the
// header describing them as live records
func writeSlots(t *testing.T, s *Store, h Header, n int) Header {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.EnsureCapacity(uint64(i)); err != nil {
			t.Fatalf("EnsureCapacity(%d) error = %v", i, err)
		}
		if err := s.WriteSlot(uint64(i), slotBytes(byte(i))); err != nil {
			t.Fatalf("WriteSlot(%d) error = %v", i, err)
		}
	}
	h.Capacity = uint64(n)
	h.Records = uint64(n)
	return h
}

func TestStore_CreateEmpty(t *testing.T) {
	s, _, path := newTestStore(t, Options{})
	defer s.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != HeaderSize {
		t.Errorf("new file size = %d, want %d", info.Size(), HeaderSize)
	}
	if s.PageCount() != 0 || s.Size() != HeaderSize {
		t.Errorf("PageCount() = %d, Size() = %d", s.PageCount(), s.Size())
	}
}

func TestStore_CreateExisting(t *testing.T) {
	s, h, path := newTestStore(t, Options{})
	s.Close()

	if _, err := Create(path, h, Options{}); !errors.Is(err, os.ErrExist) {
		t.Errorf("Create() on existing file error = %v, want ErrExist", err)
	}
}

func TestStore_WriteFlushReopen(t *testing.T) {
	s, h, path := newTestStore(t, Options{})
	h = writeSlots(t, s, h, 10)

	if s.PageCount() != 3 {
		t.Errorf("PageCount() = %d, want 3", s.PageCount())
	}

	written, err := s.Flush(h)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if written != 3 {
		t.Errorf("Flush() wrote %d pages, want 3", written)
	}
	if again, _ := s.Flush(h); again != 0 {
		t.Errorf("second Flush() wrote %d pages, want 0", again)
	}
	s.Close()

	s2, h2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s2.Close()

	if h2.Capacity != 10 || h2.FileID != h.FileID {
		t.Errorf("reopened header = %+v", h2)
	}
	for i := 0; i < 10; i++ {
		got, err := s2.ReadSlot(uint64(i))
		if err != nil {
			t.Fatalf("ReadSlot(%d) error = %v", i, err)
		}
		if !bytes.Equal(got, slotBytes(byte(i))) {
			t.Errorf("slot %d = %v", i, got[:4])
		}
	}
}

func TestStore_DirtyPagesStayUntilFlush(t *testing.T) {
	reg := metrics.NewRegistry()
	s, h, path := newTestStore(t, Options{CachePages: 1, Metrics: reg})
	h = writeSlots(t, s, h, 12)

	// All three pages are dirty, so none may leave the cache
	if s.CachedPages() != 3 {
		t.Errorf("CachedPages() = %d, want 3", s.CachedPages())
	}
	info, _ := os.Stat(path)
	if info.Size() != HeaderSize {
		t.Errorf("file size before flush = %d, want %d", info.Size(), HeaderSize)
	}

	for i := 0; i < 12; i++ {
		got, err := s.ReadSlot(uint64(i))
		if err != nil {
			t.Fatalf("ReadSlot(%d) error = %v", i, err)
		}
		if got[0] != byte(i) {
			t.Errorf("slot %d first byte = %d", i, got[0])
		}
	}

	if _, err := s.Flush(h); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if s.CachedPages() != 1 {
		t.Errorf("CachedPages() after flush = %d, want 1", s.CachedPages())
	}

	// Clean pages are evicted and read back from the file
	for i := 0; i < 12; i += testSPP {
		got, err := s.ReadSlot(uint64(i))
		if err != nil || got[0] != byte(i) {
			t.Errorf("ReadSlot(%d) after flush: %d bytes, %v", i, len(got), err)
		}
	}
	s.Close()

	info, _ = os.Stat(path)
	if want := int64(HeaderSize + 3*testSlotSize*testSPP); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}
}

func TestStore_UnflushedWritesNeverReachFile(t *testing.T) {
	s, h, path := newTestStore(t, Options{CachePages: 1})
	h = writeSlots(t, s, h, 8)
	if _, err := s.Flush(h); err != nil {
		t.Fatal(err)
	}

	// Dirty page 0, then touch page 1 so page 0 would be the LRU victim
	if err := s.WriteSlot(0, slotBytes(0xEE)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadSlot(4); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if raw[HeaderSize] != 0 {
		t.Errorf("slot 0 on disk = %#x before flush, want 0", raw[HeaderSize])
	}

	got, err := s.ReadSlot(0)
	if err != nil || got[0] != 0xEE {
		t.Errorf("ReadSlot(0): %d bytes, %v, want the unflushed write", len(got), err)
	}
	s.Close()
}

func TestStore_ForEachSlot(t *testing.T) {
	s, h, _ := newTestStore(t, Options{CachePages: 2})
	defer s.Close()
	writeSlots(t, s, h, 9)

	var seen []uint64
	err := s.ForEachSlot(9, func(slot uint64, buf []byte) error {
		if buf[0] != byte(slot) {
			t.Errorf("slot %d buffer starts with %d", slot, buf[0])
		}
		seen = append(seen, slot)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachSlot() error = %v", err)
	}
	if len(seen) != 9 || seen[8] != 8 {
		t.Errorf("visited %v", seen)
	}

	stop := errors.New("stop")
	count := 0
	err = s.ForEachSlot(9, func(slot uint64, buf []byte) error {
		count++
		if slot == 4 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || count != 5 {
		t.Errorf("early stop: err = %v, visited %d", err, count)
	}
}

func TestStore_ReadOnlyMapped(t *testing.T) {
	s, h, path := newTestStore(t, Options{})
	h = writeSlots(t, s, h, 6)
	if _, err := s.Flush(h); err != nil {
		t.Fatal(err)
	}
	s.Close()

	ro, _, err := Open(path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open(read-only) error = %v", err)
	}
	defer ro.Close()

	got, err := ro.ReadSlot(5)
	if err != nil || got[0] != 5 {
		t.Errorf("ReadSlot(5): %d bytes, %v", len(got), err)
	}
	if err := ro.WriteSlot(0, slotBytes(1)); !errors.Is(err, ErrReadOnly) {
		t.Errorf("WriteSlot() error = %v, want ErrReadOnly", err)
	}
	if err := ro.EnsureCapacity(100); !errors.Is(err, ErrReadOnly) {
		t.Errorf("EnsureCapacity() error = %v, want ErrReadOnly", err)
	}
	if _, err := ro.Flush(h); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Flush() error = %v, want ErrReadOnly", err)
	}
}

func TestStore_OpenErrors(t *testing.T) {
	dir := t.TempDir()

	notIndex := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notIndex, []byte("just some text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Open(notIndex, Options{}); !errors.Is(err, ErrNotBloomIndex) {
		t.Errorf("Open(text file) error = %v, want ErrNotBloomIndex", err)
	}

	if _, _, err := Open(filepath.Join(dir, "missing.bfi"), Options{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(missing) error = %v, want ErrNotExist", err)
	}

	// Header claims pages that are not on disk
	s, h, path := newTestStore(t, Options{})
	h.Capacity, h.Records = 8, 8
	if _, err := s.Flush(h); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if _, _, err := Open(path, Options{}); !errors.Is(err, ErrTruncated) {
		t.Errorf("Open(truncated) error = %v, want ErrTruncated", err)
	}
}

func TestStore_WriteSlotValidation(t *testing.T) {
	s, _, _ := newTestStore(t, Options{})
	defer s.Close()

	if err := s.WriteSlot(0, slotBytes(1)); !errors.Is(err, ErrSlotRange) {
		t.Errorf("WriteSlot() before EnsureCapacity error = %v, want ErrSlotRange", err)
	}
	if err := s.EnsureCapacity(0); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteSlot(0, make([]byte, 10)); !errors.Is(err, ErrSlotSize) {
		t.Errorf("WriteSlot(short) error = %v, want ErrSlotSize", err)
	}
}

func TestStore_Close(t *testing.T) {
	s, _, _ := newTestStore(t, Options{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("second Close() error = %v, want ErrStoreClosed", err)
	}
	if _, err := s.ReadSlot(0); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("ReadSlot() after Close error = %v, want ErrStoreClosed", err)
	}
}
