// Package keymap layers caller-chosen string keys over a slot-addressed
// index. The mapping lives in a separate table file next to the index and is
// loaded into memory when opened.
package keymap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"slices"

	"github.com/dd0wney/cluso-bfi/pkg/logging"
	"github.com/golang/snappy"
)

const (
	tableMagic   uint32 = 0x4b494642 // "BFIK"
	tableVersion uint16 = 1

	// magic, version, reserved, entry count, block length
	tableHeaderSize = 4 + 2 + 2 + 4 + 4
	tableFooterSize = 4

	filePermissions = 0o644
)

var (
	ErrCorruptTable = errors.New("key table is corrupt")
	ErrKeyExists    = errors.New("key already mapped")
	ErrSlotMapped   = errors.New("slot already mapped")
	ErrKeyTooLong   = errors.New("key longer than 65535 bytes")
)

// Store is an ordered two-way map between string keys and slot numbers
type Store struct {
	path   string
	byKey  map[string]uint32
	bySlot map[uint32]string
	dirty  bool
	logger logging.Logger
}

// OpenStore loads the table at path, or starts an empty one if the file does
// not exist yet. Nothing is written until Sync.
func OpenStore(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Store{
		path:   path,
		byKey:  make(map[string]uint32),
		bySlot: make(map[uint32]string),
		logger: logger.With(logging.Component("keymap")),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.decode(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.logger.Debug("key table loaded", logging.Path(path), logging.Count(len(s.byKey)))
	return s, nil
}

// Put maps key to slot. Neither may already be mapped.
func (s *Store) Put(key string, slot uint32) error {
	if len(key) > 0xffff {
		return ErrKeyTooLong
	}
	if _, ok := s.byKey[key]; ok {
		return fmt.Errorf("%w: %q", ErrKeyExists, key)
	}
	if prev, ok := s.bySlot[slot]; ok {
		return fmt.Errorf("%w: slot %d holds %q", ErrSlotMapped, slot, prev)
	}
	s.byKey[key] = slot
	s.bySlot[slot] = key
	s.dirty = true
	return nil
}

// Remove drops key and its slot. It reports whether key was mapped.
func (s *Store) Remove(key string) bool {
	slot, ok := s.byKey[key]
	if !ok {
		return false
	}
	delete(s.byKey, key)
	delete(s.bySlot, slot)
	s.dirty = true
	return true
}

func (s *Store) Slot(key string) (uint32, bool) {
	slot, ok := s.byKey[key]
	return slot, ok
}

func (s *Store) Key(slot uint32) (string, bool) {
	key, ok := s.bySlot[slot]
	return key, ok
}

func (s *Store) Len() int {
	return len(s.byKey)
}

// Keys returns every key in ascending order
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Ascend calls fn for keys in [from, to) in ascending order. An empty to
// means no upper bound. fn returns false to stop.
func (s *Store) Ascend(from, to string, fn func(key string, slot uint32) bool) {
	for _, k := range s.Keys() {
		if k < from {
			continue
		}
		if to != "" && k >= to {
			return
		}
		if !fn(k, s.byKey[k]) {
			return
		}
	}
}

// Sync writes the table to a temporary file and renames it over the old
// one. A clean store is not rewritten.
func (s *Store) Sync() error {
	if !s.dirty {
		return nil
	}
	data := s.encode()

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create key table: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write key table: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync key table: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename key table: %w", err)
	}

	s.dirty = false
	s.logger.Debug("key table synced", logging.Path(s.path), logging.Count(len(s.byKey)),
		logging.Int("bytes", len(data)))
	return nil
}

// Close syncs outstanding changes
func (s *Store) Close() error {
	return s.Sync()
}

// encode renders the table: header, snappy-compressed entry block, crc32 of
// the compressed block
func (s *Store) encode() []byte {
	keys := s.Keys()
	raw := make([]byte, 0, len(keys)*16)
	for _, k := range keys {
		raw = binary.LittleEndian.AppendUint16(raw, uint16(len(k)))
		raw = append(raw, k...)
		raw = binary.LittleEndian.AppendUint32(raw, s.byKey[k])
	}
	block := snappy.Encode(nil, raw)

	out := make([]byte, tableHeaderSize, tableHeaderSize+len(block)+tableFooterSize)
	le := binary.LittleEndian
	le.PutUint32(out[0:], tableMagic)
	le.PutUint16(out[4:], tableVersion)
	le.PutUint32(out[8:], uint32(len(keys)))
	le.PutUint32(out[12:], uint32(len(block)))
	out = append(out, block...)
	out = le.AppendUint32(out, crc32.ChecksumIEEE(block))
	return out
}

func (s *Store) decode(data []byte) error {
	le := binary.LittleEndian
	if len(data) < tableHeaderSize+tableFooterSize {
		return fmt.Errorf("%w: %d bytes", ErrCorruptTable, len(data))
	}
	if le.Uint32(data[0:]) != tableMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptTable)
	}
	if v := le.Uint16(data[4:]); v != tableVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptTable, v)
	}
	count := int(le.Uint32(data[8:]))
	blockLen := int(le.Uint32(data[12:]))
	if tableHeaderSize+blockLen+tableFooterSize != len(data) {
		return fmt.Errorf("%w: block length %d does not match file", ErrCorruptTable, blockLen)
	}

	block := data[tableHeaderSize : tableHeaderSize+blockLen]
	if crc32.ChecksumIEEE(block) != le.Uint32(data[tableHeaderSize+blockLen:]) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptTable)
	}
	raw, err := snappy.Decode(nil, block)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTable, err)
	}

	for pos := 0; pos < len(raw); {
		if pos+2 > len(raw) {
			return fmt.Errorf("%w: truncated entry", ErrCorruptTable)
		}
		n := int(le.Uint16(raw[pos:]))
		pos += 2
		if pos+n+4 > len(raw) {
			return fmt.Errorf("%w: truncated entry", ErrCorruptTable)
		}
		key := string(raw[pos : pos+n])
		slot := le.Uint32(raw[pos+n:])
		pos += n + 4
		if err := s.Put(key, slot); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptTable, err)
		}
	}
	if len(s.byKey) != count {
		return fmt.Errorf("%w: %d entries, header records %d", ErrCorruptTable, len(s.byKey), count)
	}
	s.dirty = false
	return nil
}
