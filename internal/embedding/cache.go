package embedding

import (
	"container/list"
	"sync"
)

// textCache is an LRU cache keyed by input text, per spec.md §4.2 ("consults
// an LRU cache keyed by input text before invoking the backend"). It mirrors
// the generic cache tier shape used throughout internal/memoryopt, but lives
// here rather than importing that package so the embedding engine has no
// dependency on the memory optimizer.
type textCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key   string
	value []float32
}

func newTextCache(capacity int) *textCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &textCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *textCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *textCache) put(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[text]; ok {
		el.Value.(*cacheEntry).value = vector
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: text, value: vector})
	c.items[text] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *textCache) stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *textCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
