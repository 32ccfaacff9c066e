// Package signature builds the fixed-width Bloom signatures stored with
// every index record. A value hashes to one bit in each of Hashes equal
// sectors of the signature; a record's signature is the union over its
// values. Positions depend only on the value bytes, so signatures written by
// one process are readable by any other.
package signature

import (
	"bytes"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Signature geometry used by new index files.
const (
	DefaultBits   = 1024 // 128 byte signature
	DefaultHashes = 4
)

// Codec maps tag values to bit positions inside a fixed-width signature.
// The bit vector is split into one sector per hash function and every hash
// sets exactly one bit in its own sector, so a value always contributes
// Hashes distinct bits.
type Codec struct {
	bits   int
	hashes int
	sector int
}

// New creates a codec for a signature of the given width in bits.
// bits must be a positive multiple of 8 that divides evenly into hashes sectors.
func New(bits, hashes int) (*Codec, error) {
	if hashes < 1 || bits < 8 || bits%8 != 0 || bits%hashes != 0 {
		return nil, ErrInvalidGeometry
	}
	return &Codec{
		bits:   bits,
		hashes: hashes,
		sector: bits / hashes,
	}, nil
}

// Default returns the codec for DefaultBits / DefaultHashes.
func Default() *Codec {
	c, _ := New(DefaultBits, DefaultHashes)
	return c
}

// Bits returns the signature width in bits
func (c *Codec) Bits() int {
	return c.bits
}

// Bytes returns the encoded signature length
func (c *Codec) Bytes() int {
	return c.bits / 8
}

// Hashes returns the number of positions set per value
func (c *Codec) Hashes() int {
	return c.hashes
}

// Positions returns the bit positions for a value.
// Positions are derived by double hashing a single 64-bit xxhash digest:
// position(i) = i*sector + (h1 + i*h2) mod sector
func (c *Codec) Positions(value string) []uint32 {
	sum := xxhash.Sum64String(value)
	h1 := uint32(sum)
	h2 := uint32(sum>>32) | 1

	positions := make([]uint32, c.hashes)
	sector := uint32(c.sector)
	for i := 0; i < c.hashes; i++ {
		positions[i] = uint32(i)*sector + (h1+uint32(i)*h2)%sector
	}
	return positions
}

// Encode builds the signature for a set of values.
// The same call computes lookup masks: a mask is the signature of the query terms.
func (c *Codec) Encode(values []string) Signature {
	sig := make(Signature, c.Bytes())
	for _, v := range values {
		sig.Set(c.Positions(v))
	}
	return sig
}

// EstimateFalsePositiveRate estimates the probability that a single query
// term matches the signature of a record holding tagsPerRecord unrelated tags.
func (c *Codec) EstimateFalsePositiveRate(tagsPerRecord int) float64 {
	if tagsPerRecord <= 0 {
		return 0
	}
	// Each sector receives tagsPerRecord bits; a term is a false positive
	// when its bit is already set in every sector.
	perSector := 1.0 - math.Pow(1.0-1.0/float64(c.sector), float64(tagsPerRecord))
	return math.Pow(perSector, float64(c.hashes))
}

// Signature is a packed bit vector, least significant bit first within each byte.
type Signature []byte

// Set turns on every position
func (s Signature) Set(positions []uint32) {
	for _, p := range positions {
		s[p/8] |= 1 << (p % 8)
	}
}

// Test reports whether every position is set
func (s Signature) Test(positions []uint32) bool {
	for _, p := range positions {
		if s[p/8]&(1<<(p%8)) == 0 {
			return false
		}
	}
	return true
}

// Covers reports whether every bit of mask is also set in s.
// Zero bytes in the mask are skipped, which makes sparse masks cheap.
func (s Signature) Covers(mask Signature) bool {
	if len(mask) > len(s) {
		return false
	}
	for i, m := range mask {
		if m != 0 && s[i]&m != m {
			return false
		}
	}
	return true
}

// Union ORs other into s. Both signatures must have the same width.
func (s Signature) Union(other Signature) error {
	if len(s) != len(other) {
		return ErrWidthMismatch
	}
	for i := range s {
		s[i] |= other[i]
	}
	return nil
}

// Equal reports whether two signatures have identical bits
func (s Signature) Equal(other Signature) bool {
	return bytes.Equal(s, other)
}

var (
	// ErrInvalidGeometry is returned by New when the width and hash count
	// cannot form equal byte-aligned sectors
	ErrInvalidGeometry = &CodecError{"invalid signature geometry"}

	// ErrWidthMismatch is returned when combining signatures of different
	// lengths
	ErrWidthMismatch = &CodecError{"signature widths differ"}
)

// CodecError is the error type of every signature sentinel
type CodecError struct {
	msg string
}

func (e *CodecError) Error() string {
	return e.msg
}
