package bfi

import (
	"time"

	"github.com/dd0wney/cluso-bfi/pkg/logging"
)

// Append stores values as a new record of a slot-addressed index and returns
// its slot. Freed slots are reused lowest first before the file grows.
func (i *Index) Append(values []string) (id ID, err error) {
	defer i.observe("append", time.Now(), &err)

	if err := i.mutable("append", SlotAddressed); err != nil {
		return 0, err
	}
	slot, err := i.place(0, values)
	if err != nil {
		return 0, NewError("append").Cause(err).Err()
	}
	return ID(slot), nil
}

// Insert stores values under key in a key-addressed index
func (i *Index) Insert(key ID, values []string) (err error) {
	defer i.observe("insert", time.Now(), &err)

	if err := i.mutable("insert", KeyAddressed); err != nil {
		return err
	}
	if _, err := i.addr.resolve(key); err == nil {
		return i.recordErr("insert", key, ErrDuplicateKey)
	}
	slot, err := i.place(i.addr.storedKey(key), values)
	if err != nil {
		return i.recordErr("insert", key, err)
	}
	i.addr.bind(key, slot)
	return nil
}

// Write replaces the values of an existing record, recomputing its signature
func (i *Index) Write(id ID, values []string) (err error) {
	defer i.observe("write", time.Now(), &err)

	if err := i.mutable("write", 0); err != nil {
		return err
	}
	buf, err := i.encode(i.addr.storedKey(id), values)
	if err != nil {
		return i.recordErr("write", id, err)
	}
	defer i.pool.Put(buf)

	slot, err := i.addr.resolve(id)
	if err != nil {
		return i.recordErr("write", id, err)
	}
	if err := i.store.WriteSlot(slot, buf); err != nil {
		return i.recordErr("write", id, err)
	}
	return nil
}

// Delete removes the record stored under key. Its slot is reused by a later
// Insert.
func (i *Index) Delete(key ID) (err error) {
	defer i.observe("delete", time.Now(), &err)

	if err := i.mutable("delete", KeyAddressed); err != nil {
		return err
	}
	slot, err := i.addr.resolve(key)
	if err != nil {
		return i.recordErr("delete", key, err)
	}
	if err := i.alloc.CanFree(slot); err != nil {
		return i.recordErr("delete", key, err)
	}
	buf, err := i.store.ReadSlot(slot)
	if err != nil {
		return i.recordErr("delete", key, err)
	}
	markFree(buf, 0)
	if err := i.store.WriteSlot(slot, buf); err != nil {
		return i.recordErr("delete", key, err)
	}
	if err := i.alloc.Free(slot); err != nil {
		return i.recordErr("delete", key, err)
	}
	i.addr.unbind(key)
	i.freeDirty = true

	i.logger.Debug("record deleted", logging.Key(uint64(key)), logging.Slot(slot))
	return nil
}

// Get returns the values stored for id, in the order they were written
func (i *Index) Get(id ID) ([]string, error) {
	if err := i.checkOpen("get"); err != nil {
		return nil, err
	}
	slot, err := i.addr.resolve(id)
	if err != nil {
		return nil, i.recordErr("get", id, err)
	}
	buf, err := i.store.ReadSlot(slot)
	if err != nil {
		return nil, i.recordErr("get", id, err)
	}
	values, err := i.layout.values(buf)
	if err != nil {
		return nil, i.recordErr("get", id, err)
	}
	return values, nil
}

// Len returns the number of live records
func (i *Index) Len() int {
	if !i.open {
		return 0
	}
	return int(i.alloc.Live())
}

// encode validates values and renders a complete slot into a pooled buffer
func (i *Index) encode(key uint64, values []string) ([]byte, error) {
	if err := i.layout.checkValues(values); err != nil {
		return nil, err
	}
	buf := i.pool.GetZeroed(i.layout.size)
	i.layout.encode(buf, key, i.codec.Encode(values), values)
	return buf, nil
}

// place writes a new record into the slot the allocator hands out next.
// The allocator only changes once the slot is written.
func (i *Index) place(key uint64, values []string) (uint64, error) {
	buf, err := i.encode(key, values)
	if err != nil {
		return 0, err
	}
	defer i.pool.Put(buf)

	slot, fresh := i.alloc.Peek()
	if fresh {
		if err := i.store.EnsureCapacity(slot); err != nil {
			return 0, err
		}
	}
	if err := i.store.WriteSlot(slot, buf); err != nil {
		return 0, err
	}
	i.alloc.Allocate()
	if !fresh {
		i.freeDirty = true
	}
	return slot, nil
}
