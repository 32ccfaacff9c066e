package pagestore

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dd0wney/cluso-bfi/pkg/logging"
	"github.com/dd0wney/cluso-bfi/pkg/metrics"
	"github.com/dd0wney/cluso-bfi/pkg/pools"
	"golang.org/x/exp/mmap"
)

const DefaultCachePages = 64

var (
	ErrReadOnly    = errors.New("index opened read-only")
	ErrSlotRange   = errors.New("slot beyond allocated pages")
	ErrSlotSize    = errors.New("slot buffer has wrong size")
	ErrTruncated   = errors.New("index file truncated")
	ErrStoreClosed = errors.New("page store closed")
)

// Options configures a Store
type Options struct {
	CachePages int
	ReadOnly   bool
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// Store reads and writes fixed-size slots of an index file through an LRU
// page cache. Writes only reach the file on Flush; until then dirty pages are
// pinned in the cache. A Store is not safe for concurrent use.
type Store struct {
	path     string
	file     *os.File
	mapped   *mmap.ReaderAt
	reader   io.ReaderAt
	readOnly bool

	pageSize   int
	slotSize   int
	spp        int
	pageCount  uint64
	cachePages int

	cache   *pageCache
	pool    *pools.PagePool
	logger  logging.Logger
	metrics *metrics.Registry
	closed  bool
}

func newStore(path string, h Header, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cachePages := opts.CachePages
	if cachePages < 1 {
		cachePages = DefaultCachePages
	}
	return &Store{
		path:       path,
		readOnly:   opts.ReadOnly,
		pageSize:   int(h.PageSize),
		slotSize:   int(h.SlotSize),
		spp:        h.SlotsPerPage(),
		pageCount:  h.PageCount(),
		cachePages: cachePages,
		cache:      newPageCache(),
		pool:       pools.NewPagePool(int(h.PageSize)),
		logger:     logger.With(logging.Component("pagestore"), logging.Path(path)),
		metrics:    opts.Metrics,
	}
}

// Create initialises a new index file holding only h.
// It fails if path already exists.
func Create(path string, h Header, opts Options) (*Store, error) {
	if opts.ReadOnly {
		return nil, ErrReadOnly
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	buf, _ := h.MarshalBinary()
	if _, err := f.WriteAt(buf, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, err
	}

	s := newStore(path, h, opts)
	s.file = f
	s.reader = f
	s.logger.Debug("index file created", logging.Int("page_size", s.pageSize), logging.Int("slot_size", s.slotSize))
	return s, nil
}

// Open opens an existing index file and returns its validated header.
// Read-only stores serve pages from a memory mapping of the file.
func Open(path string, opts Options) (*Store, Header, error) {
	var (
		reader io.ReaderAt
		size   int64
		file   *os.File
		mapped *mmap.ReaderAt
	)

	if opts.ReadOnly {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, Header{}, err
		}
		mapped, reader, size = m, m, int64(m.Len())
	} else {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, Header{}, err
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, Header{}, err
		}
		file, reader, size = f, f, info.Size()
	}

	closeAll := func() {
		if file != nil {
			_ = file.Close()
		}
		if mapped != nil {
			_ = mapped.Close()
		}
	}

	var h Header
	buf := make([]byte, HeaderSize)
	if size < HeaderSize {
		closeAll()
		return nil, Header{}, ErrNotBloomIndex
	}
	if _, err := reader.ReadAt(buf, 0); err != nil {
		closeAll()
		return nil, Header{}, err
	}
	if err := h.UnmarshalBinary(buf); err != nil {
		closeAll()
		return nil, Header{}, err
	}

	if need := int64(HeaderSize) + int64(h.PageCount())*int64(h.PageSize); size < need {
		closeAll()
		return nil, Header{}, fmt.Errorf("%w: %d bytes, header describes %d", ErrTruncated, size, need)
	}

	s := newStore(path, h, opts)
	s.file, s.mapped, s.reader = file, mapped, reader
	s.logger.Debug("index file opened", logging.Uint64("pages", s.pageCount), logging.Bool("read_only", s.readOnly))
	return s, h, nil
}

func (s *Store) pageOffset(num uint64) int64 {
	return HeaderSize + int64(num)*int64(s.pageSize)
}

// page returns page num, loading it into the cache on a miss
func (s *Store) page(num uint64) (*cachedPage, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if p, ok := s.cache.get(num); ok {
		s.metrics.RecordCacheLookup(true)
		return p, nil
	}
	s.metrics.RecordCacheLookup(false)

	if num >= s.pageCount {
		return nil, fmt.Errorf("%w: page %d of %d", ErrSlotRange, num, s.pageCount)
	}

	data := s.pool.Get()
	n, err := s.reader.ReadAt(data, s.pageOffset(num))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(data)) {
		s.pool.Put(data)
		return nil, err
	}

	p := &cachedPage{num: num, data: data}
	s.admit(p)
	return p, nil
}

// admit adds p to the cache and evicts least recently used clean pages
// while the cache is over capacity. Dirty pages never leave the cache before
// Flush, so between syncs the cache can grow past CachePages.
func (s *Store) admit(p *cachedPage) {
	s.cache.add(p)
	s.shrink(p)
}

// shrink evicts clean pages other than keep until the cache is within bounds
func (s *Store) shrink(keep *cachedPage) {
	for s.cache.len() > s.cachePages {
		victim := s.cache.oldestClean(keep)
		if victim == nil {
			s.metrics.RecordEviction(true)
			return
		}
		s.cache.remove(victim.num)
		s.pool.Put(victim.data)
		s.metrics.RecordEviction(false)
		s.logger.Debug("page evicted", logging.Page(victim.num))
	}
}

func (s *Store) writePage(p *cachedPage) error {
	if _, err := s.file.WriteAt(p.data, s.pageOffset(p.num)); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

func (s *Store) locate(n uint64) (num uint64, off int) {
	return n / uint64(s.spp), int(n%uint64(s.spp)) * s.slotSize
}

// ReadSlot returns a copy of slot n
func (s *Store) ReadSlot(n uint64) ([]byte, error) {
	num, off := s.locate(n)
	p, err := s.page(num)
	if err != nil {
		return nil, err
	}
	out := make([]byte, s.slotSize)
	copy(out, p.data[off:off+s.slotSize])
	return out, nil
}

// WriteSlot replaces slot n with buf and marks its page dirty.
// buf must be exactly one slot long.
func (s *Store) WriteSlot(n uint64, buf []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if len(buf) != s.slotSize {
		return fmt.Errorf("%w: %d bytes, slot is %d", ErrSlotSize, len(buf), s.slotSize)
	}
	num, off := s.locate(n)
	p, err := s.page(num)
	if err != nil {
		return err
	}
	copy(p.data[off:off+s.slotSize], buf)
	p.dirty = true
	return nil
}

// ForEachSlot calls fn for slots [0, limit) in ascending order. buf aliases
// the page cache and is only valid during the call; fn must not use the
// store. A non-nil error from fn stops the scan and is returned.
func (s *Store) ForEachSlot(limit uint64, fn func(slot uint64, buf []byte) error) error {
	for slot := uint64(0); slot < limit; {
		num, _ := s.locate(slot)
		p, err := s.page(num)
		if err != nil {
			return err
		}
		end := min((num+1)*uint64(s.spp), limit)
		for ; slot < end; slot++ {
			_, off := s.locate(slot)
			if err := fn(slot, p.data[off:off+s.slotSize]); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnsureCapacity grows the file by whole zero-filled pages until slot n
// exists. New pages start dirty and only reach the file on Flush.
func (s *Store) EnsureCapacity(n uint64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if s.closed {
		return ErrStoreClosed
	}
	need := n/uint64(s.spp) + 1
	for s.pageCount < need {
		p := &cachedPage{num: s.pageCount, data: s.pool.Get(), dirty: true}
		s.pageCount++
		s.logger.Debug("page allocated", logging.Page(p.num))
		s.admit(p)
	}
	return nil
}

// Flush writes every dirty page in ascending order and fsyncs them, then
// writes and fsyncs the header, so pages are durable before the header that
// describes them. It returns the number of pages written.
func (s *Store) Flush(h Header) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	if s.closed {
		return 0, ErrStoreClosed
	}

	dirty := s.cache.dirty()
	for _, p := range dirty {
		if err := s.writePage(p); err != nil {
			return 0, err
		}
	}
	if len(dirty) > 0 {
		if err := s.file.Sync(); err != nil {
			return 0, err
		}
	}

	buf, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if _, err := s.file.WriteAt(buf, 0); err != nil {
		return 0, err
	}
	if err := s.file.Sync(); err != nil {
		return 0, err
	}
	s.shrink(nil)
	return len(dirty), nil
}

// Close releases the file. Dirty pages that were not flushed are dropped.
func (s *Store) Close() error {
	if s.closed {
		return ErrStoreClosed
	}
	s.closed = true
	s.cache.drain(func(p *cachedPage) { s.pool.Put(p.data) })

	if s.mapped != nil {
		return s.mapped.Close()
	}
	return s.file.Close()
}

func (s *Store) Path() string      { return s.path }
func (s *Store) ReadOnly() bool    { return s.readOnly }
func (s *Store) PageCount() uint64 { return s.pageCount }
func (s *Store) PageSize() int     { return s.pageSize }
func (s *Store) SlotSize() int     { return s.slotSize }
func (s *Store) SlotsPerPage() int { return s.spp }
func (s *Store) CachedPages() int  { return s.cache.len() }

// Size returns the file size implied by the page count
func (s *Store) Size() int64 {
	return s.pageOffset(s.pageCount)
}

// CacheStats returns page cache hits and misses
func (s *Store) CacheStats() (hits, misses int64) {
	return s.cache.hits, s.cache.misses
}
