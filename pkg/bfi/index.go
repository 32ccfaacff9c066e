// Package bfi implements a file-backed Bloom filter index.
//
// Each record is an ordered, non-empty list of string tags stored in a
// fixed-size slot together with a Bloom signature of those tags. Lookups
// scan signatures for candidates and verify each candidate against the
// stored tags, so results never contain false positives.
//
// An Index is a single-writer handle and is not safe for concurrent use.
// Nothing written is durable until Sync (or Close) returns.
package bfi

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dd0wney/cluso-bfi/pkg/alloc"
	"github.com/dd0wney/cluso-bfi/pkg/logging"
	"github.com/dd0wney/cluso-bfi/pkg/metrics"
	"github.com/dd0wney/cluso-bfi/pkg/pagestore"
	"github.com/dd0wney/cluso-bfi/pkg/pools"
	"github.com/dd0wney/cluso-bfi/pkg/signature"
	"github.com/google/uuid"
)

// Index is a handle on one index file. The zero handle returned by New is
// closed; Open moves it to open and Close moves it back.
type Index struct {
	opts    Options
	logger  logging.Logger
	metrics *metrics.Registry
	pool    *pools.BytePool

	path   string
	open   bool
	store  *pagestore.Store
	header pagestore.Header
	codec  *signature.Codec
	layout slotLayout
	alloc  *alloc.Allocator
	addr   addresser

	// freeDirty is set when the free list changed since the last sync and
	// the on-disk chain must be rewritten
	freeDirty bool
}

// Stat is a snapshot of an open index
type Stat struct {
	Path           string
	Version        uint16
	Addressing     Addressing
	Records        uint64
	Capacity       uint64
	FreeSlots      uint64
	Pages          uint64
	RecordsPerPage int
	SignatureBits  int
	SignatureBytes int
	Hashes         int
	PageSize       int
	SlotSize       int
	Size           int64
	FileID         uuid.UUID
	ReadOnly       bool
}

// New creates a closed handle configured by opts
func New(opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Index{
		opts:    opts,
		logger:  logger.With(logging.Component("bfi")),
		metrics: opts.Metrics,
		pool:    pools.NewBytePool(),
	}
}

// Open opens (or with opts.Create, creates) the index at path
func Open(path string, opts Options) (*Index, error) {
	idx := New(opts)
	if err := idx.Open(path); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) observe(op string, start time.Time, err *error) {
	i.metrics.RecordOperation(op, *err, time.Since(start))
}

// Open attaches the handle to the file at path. A missing file is created
// when the options allow it; an existing file keeps its own geometry.
func (i *Index) Open(path string) (err error) {
	defer i.observe("open", time.Now(), &err)

	if i.open {
		return NewError("open").Path(path).Cause(ErrAlreadyOpen).Err()
	}
	if err := i.opts.Validate(); err != nil {
		return NewError("open").Path(path).Cause(err).Err()
	}

	timer := logging.StartTimer(i.logger, "index opened", logging.Path(path))
	storeOpts := pagestore.Options{
		CachePages: i.opts.CachePages,
		ReadOnly:   i.opts.ReadOnly,
		Logger:     i.logger,
		Metrics:    i.metrics,
	}

	created := false
	store, header, err := pagestore.Open(path, storeOpts)
	if errors.Is(err, fs.ErrNotExist) && i.opts.Create && !i.opts.ReadOnly {
		header = i.opts.header()
		store, err = pagestore.Create(path, header, storeOpts)
		created = true
	}
	if err != nil {
		i.logger.Warn("index open failed", logging.Path(path), logging.Error(err))
		return NewError("open").Path(path).Cause(err).Err()
	}

	if err := i.attach(path, store, header); err != nil {
		_ = store.Close()
		i.logger.Error("index rejected", logging.Path(path), logging.Error(err))
		return NewError("open").Path(path).Cause(err).Err()
	}

	if !created && i.opts.Addressing != 0 && i.opts.Addressing != i.addr.mode() {
		i.logger.Warn("addressing option ignored for existing file",
			logging.String("requested", i.opts.Addressing.String()),
			logging.String("file", i.addr.mode().String()))
	}

	i.updateGauges()
	timer.EndInfo(
		logging.Bool("created", created),
		logging.Version(header.Version),
		logging.Records(header.Records),
		logging.Uint64("pages", store.PageCount()),
	)
	return nil
}

// attach loads allocator and addressing state from a freshly opened store
func (i *Index) attach(path string, store *pagestore.Store, h pagestore.Header) error {
	codec, err := signature.New(int(h.SignatureBits), int(h.Hashes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleFormat, err)
	}
	layout := slotLayout{size: int(h.SlotSize), sigBytes: codec.Bytes()}

	free, err := readFreeChain(store, h)
	if err != nil {
		return err
	}
	a, err := alloc.Restore(h.Capacity, h.Records, free)
	if err != nil {
		return err
	}

	var addr addresser = &slotAddresser{alloc: a}
	if h.Keyed() {
		ka, err := loadKeys(store, h.Capacity, a)
		if err != nil {
			return err
		}
		addr = ka
	}

	i.path = path
	i.store = store
	i.header = h
	i.codec = codec
	i.layout = layout
	i.alloc = a
	i.addr = addr
	i.freeDirty = false
	i.open = true
	return nil
}

// readFreeChain follows the persisted free list from the header
func readFreeChain(store *pagestore.Store, h pagestore.Header) ([]uint64, error) {
	var free []uint64
	for link := h.FreeHead; link != 0; {
		if uint64(len(free)) >= h.FreeCount {
			return nil, fmt.Errorf("%w: chain longer than %d entries", ErrCorruptFreeList, h.FreeCount)
		}
		slot := link - 1
		if slot >= h.Capacity {
			return nil, fmt.Errorf("%w: link to slot %d beyond capacity %d", ErrCorruptFreeList, slot, h.Capacity)
		}
		buf, err := store.ReadSlot(slot)
		if err != nil {
			return nil, err
		}
		if isLive(buf) {
			return nil, fmt.Errorf("%w: live slot %d on free list", ErrCorruptFreeList, slot)
		}
		free = append(free, slot)
		link = freeLink(buf)
	}
	if uint64(len(free)) != h.FreeCount {
		return nil, fmt.Errorf("%w: found %d free slots, header records %d", ErrCorruptFreeList, len(free), h.FreeCount)
	}
	return free, nil
}

// loadKeys rebuilds the key map of a key-addressed file
func loadKeys(store *pagestore.Store, capacity uint64, a *alloc.Allocator) (*keyAddresser, error) {
	ka := newKeyAddresser()
	err := store.ForEachSlot(capacity, func(slot uint64, buf []byte) error {
		if !isLive(buf) {
			if !a.IsFree(slot) {
				return fmt.Errorf("%w: slot %d is neither live nor free", ErrCorruptFreeList, slot)
			}
			return nil
		}
		id := ID(slotKey(buf))
		if prev, dup := ka.slots[id]; dup {
			return fmt.Errorf("%w: key %d stored in slots %d and %d", ErrCorruptSlot, uint64(id), prev, slot)
		}
		ka.bind(id, slot)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ka, nil
}

func (i *Index) checkOpen(op string) error {
	if !i.open {
		return NewError(op).Cause(ErrClosed).Err()
	}
	return nil
}

// mutable checks that op may modify the index. want == 0 accepts either
// addressing mode.
func (i *Index) mutable(op string, want Addressing) error {
	if err := i.checkOpen(op); err != nil {
		return err
	}
	if i.store.ReadOnly() {
		return NewError(op).Path(i.path).Cause(ErrReadOnly).Err()
	}
	if want != 0 && i.addr.mode() != want {
		return NewError(op).Cause(fmt.Errorf("%w: %s on a %s-addressed file", ErrWrongAddressing, op, i.addr.mode())).Err()
	}
	return nil
}

// recordErr decorates cause with the record identifier in the form the
// file's addressing uses
func (i *Index) recordErr(op string, id ID, cause error) error {
	b := NewError(op).Cause(cause)
	if i.addr != nil && i.addr.mode() == KeyAddressed {
		b.Key(uint64(id))
	} else {
		b.Slot(uint64(id))
	}
	return b.Err()
}

// Sync flushes dirty pages and the header to stable storage and returns the
// number of live records.
func (i *Index) Sync() (n int, err error) {
	defer i.observe("sync", time.Now(), &err)

	if err := i.checkOpen("sync"); err != nil {
		return 0, err
	}
	if i.store.ReadOnly() {
		return int(i.alloc.Live()), nil
	}
	n, err = i.sync()
	if err != nil {
		i.logger.Error("sync failed", logging.Path(i.path), logging.Error(err))
		return 0, NewError("sync").Path(i.path).Cause(err).Err()
	}
	return n, nil
}

func (i *Index) sync() (int, error) {
	start := time.Now()
	if i.freeDirty {
		if err := i.relinkFreeList(); err != nil {
			return 0, err
		}
	}

	i.header.Capacity = i.alloc.Capacity()
	i.header.Records = i.alloc.Live()
	i.header.FreeCount = i.alloc.FreeCount()

	pages, err := i.store.Flush(i.header)
	if err != nil {
		return 0, err
	}
	i.freeDirty = false

	i.metrics.RecordSync(pages, time.Since(start))
	i.updateGauges()
	i.logger.Debug("index synced",
		logging.Records(i.header.Records),
		logging.Int("pages_written", pages),
		logging.Latency(time.Since(start)))
	return int(i.header.Records), nil
}

// relinkFreeList rewrites the on-disk free chain in ascending slot order.
// Slots whose link is already correct are not rewritten.
func (i *Index) relinkFreeList() error {
	free := i.alloc.FreeSlots()
	for n, slot := range free {
		var next uint64
		if n+1 < len(free) {
			next = free[n+1] + 1
		}
		buf, err := i.store.ReadSlot(slot)
		if err != nil {
			return err
		}
		if !isLive(buf) && freeLink(buf) == next {
			continue
		}
		markFree(buf, next)
		if err := i.store.WriteSlot(slot, buf); err != nil {
			return err
		}
	}

	i.header.FreeHead = 0
	if len(free) > 0 {
		i.header.FreeHead = free[0] + 1
	}
	return nil
}

func (i *Index) updateGauges() {
	i.metrics.UpdateIndexMetrics(i.alloc.Live(), i.alloc.Capacity(), i.alloc.FreeCount(),
		i.store.PageCount(), i.store.Size())
}

// Stat returns a snapshot of the index counters and geometry
func (i *Index) Stat() (Stat, error) {
	if err := i.checkOpen("stat"); err != nil {
		return Stat{}, err
	}
	return Stat{
		Path:           i.path,
		Version:        i.header.Version,
		Addressing:     addressingOf(i.header.Version),
		Records:        i.alloc.Live(),
		Capacity:       i.alloc.Capacity(),
		FreeSlots:      i.alloc.FreeCount(),
		Pages:          i.store.PageCount(),
		RecordsPerPage: i.store.SlotsPerPage(),
		SignatureBits:  i.codec.Bits(),
		SignatureBytes: i.codec.Bytes(),
		Hashes:         i.codec.Hashes(),
		PageSize:       i.store.PageSize(),
		SlotSize:       i.store.SlotSize(),
		Size:           i.store.Size(),
		FileID:         i.header.FileID,
		ReadOnly:       i.store.ReadOnly(),
	}, nil
}

// Close flushes outstanding changes and releases the file. The handle is
// closed afterwards even if the flush fails.
func (i *Index) Close() (err error) {
	defer i.observe("close", time.Now(), &err)

	if err := i.checkOpen("close"); err != nil {
		return err
	}

	var flushErr error
	if !i.store.ReadOnly() {
		_, flushErr = i.sync()
	}
	closeErr := i.store.Close()

	path, records := i.path, i.alloc.Live()
	i.open = false
	i.store, i.alloc, i.addr, i.codec = nil, nil, nil, nil

	if err := errors.Join(flushErr, closeErr); err != nil {
		i.logger.Error("index close failed", logging.Path(path), logging.Error(err))
		return NewError("close").Path(path).Cause(err).Err()
	}
	i.logger.Info("index closed", logging.Path(path), logging.Records(records))
	return nil
}

// IsOpen reports whether the handle is open
func (i *Index) IsOpen() bool {
	return i.open
}

// Path returns the file the handle was last opened on
func (i *Index) Path() string {
	return i.path
}

// Addressing returns the addressing mode of the open file
func (i *Index) Addressing() Addressing {
	if i.addr == nil {
		return 0
	}
	return i.addr.mode()
}
