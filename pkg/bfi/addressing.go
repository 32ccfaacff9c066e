package bfi

import (
	"fmt"

	"github.com/dd0wney/cluso-bfi/pkg/alloc"
)

// ID identifies a record: a slot number in slot-addressed files, the
// caller's key in key-addressed files.
type ID uint64

// addresser translates between record IDs and slots. It is chosen once when
// the file is opened, from the header version.
type addresser interface {
	mode() Addressing
	// resolve finds the live slot holding id
	resolve(id ID) (uint64, error)
	// identify returns the ID of the live slot held in buf
	identify(slot uint64, buf []byte) ID
	// storedKey is the value written into the slot key field for id
	storedKey(id ID) uint64
	bind(id ID, slot uint64)
	unbind(id ID)
}

// slotAddresser exposes slot numbers directly
type slotAddresser struct {
	alloc *alloc.Allocator
}

func (a *slotAddresser) mode() Addressing { return SlotAddressed }

func (a *slotAddresser) resolve(id ID) (uint64, error) {
	slot := uint64(id)
	if !a.alloc.IsLive(slot) {
		return 0, fmt.Errorf("%w: %d", ErrNoRecord, slot)
	}
	return slot, nil
}

func (a *slotAddresser) identify(slot uint64, _ []byte) ID { return ID(slot) }
func (a *slotAddresser) storedKey(ID) uint64               { return 0 }
func (a *slotAddresser) bind(ID, uint64)                   {}
func (a *slotAddresser) unbind(ID)                         {}

// keyAddresser keeps an in-memory key to slot map rebuilt from the slots
// when the file is opened
type keyAddresser struct {
	slots map[ID]uint64
}

func newKeyAddresser() *keyAddresser {
	return &keyAddresser{slots: make(map[ID]uint64)}
}

func (a *keyAddresser) mode() Addressing { return KeyAddressed }

func (a *keyAddresser) resolve(id ID) (uint64, error) {
	slot, ok := a.slots[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrKeyNotFound, uint64(id))
	}
	return slot, nil
}

func (a *keyAddresser) identify(_ uint64, buf []byte) ID { return ID(slotKey(buf)) }
func (a *keyAddresser) storedKey(id ID) uint64           { return uint64(id) }
func (a *keyAddresser) bind(id ID, slot uint64)          { a.slots[id] = slot }
func (a *keyAddresser) unbind(id ID)                     { delete(a.slots, id) }
