package bfi

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dd0wney/cluso-bfi/pkg/pagestore"
	"github.com/dd0wney/cluso-bfi/pkg/signature"
)

const (
	slotFlagLive = 1 << 0

	offFlags = 0
	offCount = 2
	offKey   = 4
	offSig   = pagestore.SlotPrefixSize
)

// slotLayout knows where the signature and payload live inside a slot
type slotLayout struct {
	size     int
	sigBytes int
}

func (l slotLayout) payloadOffset() int {
	return offSig + l.sigBytes
}

// payloadRoom is the number of bytes available for values
func (l slotLayout) payloadRoom() int {
	return l.size - l.payloadOffset()
}

// encodedSize returns the payload length values need
func encodedSize(values []string) (int, error) {
	n := 0
	for _, v := range values {
		if len(v) > math.MaxUint16 {
			return 0, fmt.Errorf("%w: value of %d bytes", ErrPayloadTooLarge, len(v))
		}
		n += 2 + len(v)
	}
	return n, nil
}

// checkValues rejects value sets that cannot be stored
func (l slotLayout) checkValues(values []string) error {
	if len(values) == 0 {
		return ErrNoValues
	}
	if len(values) > math.MaxUint16 {
		return fmt.Errorf("%w: %d values", ErrPayloadTooLarge, len(values))
	}
	n, err := encodedSize(values)
	if err != nil {
		return err
	}
	if n > l.payloadRoom() {
		return fmt.Errorf("%w: %d bytes, room for %d", ErrPayloadTooLarge, n, l.payloadRoom())
	}
	return nil
}

// encode writes a live slot into buf (len(buf) == l.size). buf must be zeroed.
// Signature and payload are always produced together from the same values.
func (l slotLayout) encode(buf []byte, key uint64, sig signature.Signature, values []string) {
	le := binary.LittleEndian
	buf[offFlags] = slotFlagLive
	le.PutUint16(buf[offCount:], uint16(len(values)))
	le.PutUint64(buf[offKey:], key)
	copy(buf[offSig:offSig+l.sigBytes], sig)

	pos := l.payloadOffset()
	for _, v := range values {
		le.PutUint16(buf[pos:], uint16(len(v)))
		pos += 2
		pos += copy(buf[pos:], v)
	}
}

func isLive(buf []byte) bool {
	return buf[offFlags]&slotFlagLive != 0
}

func slotKey(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[offKey:])
}

func (l slotLayout) signature(buf []byte) signature.Signature {
	return signature.Signature(buf[offSig : offSig+l.sigBytes])
}

// freeLink returns the next free slot + 1 stored in a free slot
func freeLink(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[offKey:])
}

// markFree clears the live flag and threads the slot into the free chain.
// Signature and payload bytes are left as they were.
func markFree(buf []byte, next uint64) {
	buf[offFlags] &^= slotFlagLive
	binary.LittleEndian.PutUint64(buf[offKey:], next)
}

// values decodes the payload. It fails on payloads that run past the slot.
func (l slotLayout) values(buf []byte) ([]string, error) {
	count := int(binary.LittleEndian.Uint16(buf[offCount:]))
	out := make([]string, 0, count)
	err := l.walk(buf, func(v []byte) bool {
		out = append(out, string(v))
		return true
	})
	return out, err
}

// walk calls fn for each stored value without allocating; fn returns false to stop
func (l slotLayout) walk(buf []byte, fn func(v []byte) bool) error {
	count := int(binary.LittleEndian.Uint16(buf[offCount:]))
	pos := l.payloadOffset()
	for i := 0; i < count; i++ {
		if pos+2 > len(buf) {
			return ErrCorruptSlot
		}
		n := int(binary.LittleEndian.Uint16(buf[pos:]))
		pos += 2
		if pos+n > len(buf) {
			return ErrCorruptSlot
		}
		if !fn(buf[pos : pos+n]) {
			return nil
		}
		pos += n
	}
	return nil
}

// containsAll verifies a signature candidate: every query term must equal
// one of the stored values.
func (l slotLayout) containsAll(buf []byte, terms []string) bool {
	for _, term := range terms {
		found := false
		if err := l.walk(buf, func(v []byte) bool {
			if string(v) == term {
				found = true
				return false
			}
			return true
		}); err != nil {
			return false
		}
		if !found {
			return false
		}
	}
	return true
}
