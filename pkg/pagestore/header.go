package pagestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
)

// Index file format:
//   [Header: 128 bytes, little endian]
//     0   magic "BFI>"      4
//     4   version           2
//     6   flags             2
//     8   page size         4
//     12  slot size         4
//     16  signature bits    4
//     20  hash count        4
//     24  capacity          8
//     32  live records      8
//     40  free head         8  (slot + 1, 0 = empty)
//     48  free count        8
//     56  file id           16
//     72  reserved          52
//     124 crc32             4  (Castagnoli, bytes 0..124)
//   [Page 0][Page 1]...  each page = slots per page * slot size
//
// Every slot starts with a fixed prefix, followed by the signature and the
// verification payload:
//     0   flags             1  (bit 0 = live)
//     1   reserved          1
//     2   value count       2
//     4   key / free link   8
//     12  signature         signature bits / 8

const (
	HeaderSize = 128
	Magic      = 0x3e494642 // "BFI\x3e"

	VersionSlotAddressed uint16 = 2
	VersionKeyAddressed  uint16 = 3

	DefaultSlotSize     = 512
	DefaultSlotsPerPage = 512

	MaxSlotSize     = 1 << 16
	MaxSlotsPerPage = 1 << 16

	SlotPrefixSize = 12

	checksumOffset = HeaderSize - 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrNotBloomIndex       = errors.New("not a bloom index")
	ErrIncompatibleVersion = errors.New("incompatible file version")
	ErrIncompatibleFormat  = errors.New("incompatible bloom format")
	ErrChecksum            = errors.New("header checksum mismatch")
	ErrHeaderCounts        = errors.New("header record counts inconsistent")
)

// Header is the decoded leading block of an index file
type Header struct {
	Version       uint16
	Flags         uint16
	PageSize      uint32
	SlotSize      uint32
	SignatureBits uint32
	Hashes        uint32
	Capacity      uint64
	Records       uint64
	FreeHead      uint64
	FreeCount     uint64
	FileID        uuid.UUID
}

// NewHeader builds the header for a fresh, empty file
func NewHeader(version uint16, slotSize, slotsPerPage, signatureBits, hashes int) Header {
	return Header{
		Version:       version,
		PageSize:      uint32(slotSize * slotsPerPage),
		SlotSize:      uint32(slotSize),
		SignatureBits: uint32(signatureBits),
		Hashes:        uint32(hashes),
		FileID:        uuid.New(),
	}
}

// SlotsPerPage returns how many slots fit in one page
func (h Header) SlotsPerPage() int {
	if h.SlotSize == 0 {
		return 0
	}
	return int(h.PageSize / h.SlotSize)
}

// PageCount returns the pages needed to hold Capacity slots
func (h Header) PageCount() uint64 {
	spp := uint64(h.SlotsPerPage())
	if spp == 0 {
		return 0
	}
	return (h.Capacity + spp - 1) / spp
}

// SlotOffset returns the absolute file offset of slot n
func (h Header) SlotOffset(n uint64) int64 {
	spp := uint64(h.SlotsPerPage())
	return HeaderSize + int64(n/spp)*int64(h.PageSize) + int64(n%spp)*int64(h.SlotSize)
}

// Keyed reports whether slots carry a caller key
func (h Header) Keyed() bool {
	return h.Version == VersionKeyAddressed
}

// MarshalBinary encodes the header into its 128-byte on-disk form
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:4], Magic)
	le.PutUint16(buf[4:6], h.Version)
	le.PutUint16(buf[6:8], h.Flags)
	le.PutUint32(buf[8:12], h.PageSize)
	le.PutUint32(buf[12:16], h.SlotSize)
	le.PutUint32(buf[16:20], h.SignatureBits)
	le.PutUint32(buf[20:24], h.Hashes)
	le.PutUint64(buf[24:32], h.Capacity)
	le.PutUint64(buf[32:40], h.Records)
	le.PutUint64(buf[40:48], h.FreeHead)
	le.PutUint64(buf[48:56], h.FreeCount)
	copy(buf[56:72], h.FileID[:])
	le.PutUint32(buf[checksumOffset:], crc32.Checksum(buf[:checksumOffset], castagnoli))

	return buf, nil
}

// UnmarshalBinary decodes and validates an on-disk header.
// Magic is checked first so that arbitrary files report ErrNotBloomIndex.
func (h *Header) UnmarshalBinary(buf []byte) error {
	le := binary.LittleEndian
	if len(buf) < HeaderSize || le.Uint32(buf[0:4]) != Magic {
		return ErrNotBloomIndex
	}

	version := le.Uint16(buf[4:6])
	if version != VersionSlotAddressed && version != VersionKeyAddressed {
		return fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}

	if want, got := le.Uint32(buf[checksumOffset:HeaderSize]), crc32.Checksum(buf[:checksumOffset], castagnoli); want != got {
		return fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksum, want, got)
	}

	*h = Header{
		Version:       version,
		Flags:         le.Uint16(buf[6:8]),
		PageSize:      le.Uint32(buf[8:12]),
		SlotSize:      le.Uint32(buf[12:16]),
		SignatureBits: le.Uint32(buf[16:20]),
		Hashes:        le.Uint32(buf[20:24]),
		Capacity:      le.Uint64(buf[24:32]),
		Records:       le.Uint64(buf[32:40]),
		FreeHead:      le.Uint64(buf[40:48]),
		FreeCount:     le.Uint64(buf[48:56]),
	}
	copy(h.FileID[:], buf[56:72])

	return h.Validate()
}

// Validate checks geometry and counts
func (h Header) Validate() error {
	if h.Version != VersionSlotAddressed && h.Version != VersionKeyAddressed {
		return fmt.Errorf("%w: %d", ErrIncompatibleVersion, h.Version)
	}
	if h.SlotSize == 0 || h.SlotSize > MaxSlotSize || h.PageSize%h.SlotSize != 0 {
		return fmt.Errorf("%w: page size %d, slot size %d", ErrIncompatibleFormat, h.PageSize, h.SlotSize)
	}
	if spp := h.SlotsPerPage(); spp < 1 || spp > MaxSlotsPerPage {
		return fmt.Errorf("%w: %d slots per page", ErrIncompatibleFormat, spp)
	}
	if h.SignatureBits == 0 || h.SignatureBits%8 != 0 || h.Hashes == 0 {
		return fmt.Errorf("%w: %d-bit signature, %d hashes", ErrIncompatibleFormat, h.SignatureBits, h.Hashes)
	}
	if uint64(h.SignatureBits/8)+SlotPrefixSize >= uint64(h.SlotSize) {
		return fmt.Errorf("%w: %d-bit signature does not fit a %d-byte slot", ErrIncompatibleFormat, h.SignatureBits, h.SlotSize)
	}
	if h.Records > h.Capacity || h.Records+h.FreeCount != h.Capacity {
		return fmt.Errorf("%w: %d records + %d free != capacity %d", ErrHeaderCounts, h.Records, h.FreeCount, h.Capacity)
	}
	if (h.FreeHead == 0) != (h.FreeCount == 0) || h.FreeHead > h.Capacity {
		return fmt.Errorf("%w: free head %d with %d free slots", ErrHeaderCounts, h.FreeHead, h.FreeCount)
	}
	return nil
}
