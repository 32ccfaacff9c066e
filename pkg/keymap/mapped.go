package keymap

import (
	"errors"
	"fmt"
	"math"

	"github.com/dd0wney/cluso-bfi/pkg/bfi"
	"github.com/dd0wney/cluso-bfi/pkg/logging"
)

// TableSuffix is appended to the index path to name its key table
const TableSuffix = ".pk"

// ErrUnmappedSlot means the index returned a slot the key table does not know
var ErrUnmappedSlot = errors.New("slot has no key")

// Mapped addresses a slot-addressed index by string primary keys
type Mapped struct {
	index *bfi.Index
	keys  *Store
}

// OpenMapped opens the index at path and its key table at path+".pk"
func OpenMapped(path string, opts bfi.Options) (*Mapped, error) {
	opts.Addressing = bfi.SlotAddressed
	index, err := bfi.Open(path, opts)
	if err != nil {
		return nil, err
	}
	m, err := Wrap(index, opts.Logger)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	return m, nil
}

// Wrap loads the key table belonging to an open slot-addressed index. The
// returned Mapped owns index from then on.
func Wrap(index *bfi.Index, logger logging.Logger) (*Mapped, error) {
	if index.Addressing() != bfi.SlotAddressed {
		return nil, fmt.Errorf("%w: key tables need a slot-addressed index", bfi.ErrWrongAddressing)
	}
	keys, err := OpenStore(index.Path()+TableSuffix, logger)
	if err != nil {
		return nil, err
	}
	return &Mapped{index: index, keys: keys}, nil
}

// Insert appends values and records pk for the new slot
func (m *Mapped) Insert(pk string, values []string) error {
	if _, ok := m.keys.Slot(pk); ok {
		return fmt.Errorf("%w: %q", bfi.ErrDuplicateKey, pk)
	}
	if len(pk) > math.MaxUint16 {
		return ErrKeyTooLong
	}
	id, err := m.index.Append(values)
	if err != nil {
		return err
	}
	if uint64(id) > math.MaxUint32 {
		return fmt.Errorf("slot %d does not fit a key table entry", uint64(id))
	}
	return m.keys.Put(pk, uint32(id))
}

// Write replaces the values stored under pk
func (m *Mapped) Write(pk string, values []string) error {
	slot, ok := m.keys.Slot(pk)
	if !ok {
		return fmt.Errorf("%w: %q", bfi.ErrKeyNotFound, pk)
	}
	return m.index.Write(bfi.ID(slot), values)
}

// Get returns the values stored under pk
func (m *Mapped) Get(pk string) ([]string, error) {
	slot, ok := m.keys.Slot(pk)
	if !ok {
		return nil, fmt.Errorf("%w: %q", bfi.ErrKeyNotFound, pk)
	}
	return m.index.Get(bfi.ID(slot))
}

// Lookup returns the keys of every record holding all values, in slot order
func (m *Mapped) Lookup(values []string) ([]string, error) {
	ids, err := m.index.Lookup(values)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		pk, ok := m.keys.Key(uint32(id))
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnmappedSlot, uint64(id))
		}
		out = append(out, pk)
	}
	return out, nil
}

// Sync flushes the index and then the key table
func (m *Mapped) Sync() (int, error) {
	n, err := m.index.Sync()
	if err != nil {
		return 0, err
	}
	if err := m.keys.Sync(); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the index and the key table, reporting both failures
func (m *Mapped) Close() error {
	idxErr := m.index.Close()
	keyErr := m.keys.Close()
	return errors.Join(idxErr, keyErr)
}

func (m *Mapped) Index() *bfi.Index { return m.index }
func (m *Mapped) Keys() *Store      { return m.keys }

// Stat returns the index statistics and warns when the key table holds a
// different number of keys
func (m *Mapped) Stat() (bfi.Stat, error) {
	st, err := m.index.Stat()
	if err == nil && m.keys.Len() != int(st.Records) {
		m.keys.logger.Warn("key table and index disagree",
			logging.Count(m.keys.Len()), logging.Records(st.Records))
	}
	return st, err
}
