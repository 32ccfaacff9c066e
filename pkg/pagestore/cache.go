package pagestore

import (
	"container/list"
	"slices"
)

// cachedPage is one page held in memory. dirty is never persisted.
type cachedPage struct {
	num   uint64
	data  []byte
	dirty bool
}

// pageCache is an LRU of pages keyed by page number
type pageCache struct {
	pages map[uint64]*list.Element
	lru   *list.List

	hits   int64
	misses int64
}

func newPageCache() *pageCache {
	return &pageCache{
		pages: make(map[uint64]*list.Element),
		lru:   list.New(),
	}
}

func (c *pageCache) get(num uint64) (*cachedPage, bool) {
	if elem, ok := c.pages[num]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cachedPage), true
	}
	c.misses++
	return nil, false
}

func (c *pageCache) add(p *cachedPage) {
	if elem, ok := c.pages[p.num]; ok {
		elem.Value = p
		c.lru.MoveToFront(elem)
		return
	}
	c.pages[p.num] = c.lru.PushFront(p)
}

// oldestClean returns the least recently used page that is not dirty,
// ignoring skip. It returns nil when every other page is dirty.
func (c *pageCache) oldestClean(skip *cachedPage) *cachedPage {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		if p := elem.Value.(*cachedPage); !p.dirty && p != skip {
			return p
		}
	}
	return nil
}

func (c *pageCache) remove(num uint64) {
	if elem, ok := c.pages[num]; ok {
		c.lru.Remove(elem)
		delete(c.pages, num)
	}
}

func (c *pageCache) len() int {
	return c.lru.Len()
}

// dirty returns the dirty pages in ascending page order
func (c *pageCache) dirty() []*cachedPage {
	var out []*cachedPage
	for _, elem := range c.pages {
		if p := elem.Value.(*cachedPage); p.dirty {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *cachedPage) int {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	})
	return out
}

// drain empties the cache, handing every page to fn
func (c *pageCache) drain(fn func(*cachedPage)) {
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		fn(elem.Value.(*cachedPage))
	}
	c.pages = make(map[uint64]*list.Element)
	c.lru.Init()
}
