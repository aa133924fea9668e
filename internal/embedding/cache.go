package embedding

import (
	"container/list"
	"strings"
	"sync"
)

// QueryCache is an LRU of query embeddings. Keys are normalized so questions that differ
// only in surrounding or repeated whitespace share an entry. Stored vectors are copied in
// and out, so callers may modify what they get back.
type QueryCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	hits     uint64
	misses   uint64
	mu       sync.Mutex
}

type cacheEntry struct {
	key    string
	vector []float32
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// NewQueryCache creates a cache holding at most capacity vectors.
func NewQueryCache(capacity int) *QueryCache {
	return &QueryCache{
		capacity: max(capacity, 1),
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func cacheKey(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Get returns a copy of the vector cached for text and marks it recently used.
func (c *QueryCache) Get(text string) ([]float32, bool) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(elem)
	return clone(elem.Value.(*cacheEntry).vector), true
}

// Set stores a copy of vector for text, evicting the least recently used entry when full.
func (c *QueryCache) Set(text string, vector []float32) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).vector = clone(vector)
		c.lru.MoveToFront(elem)
		return
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, vector: clone(vector)})
	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Stats returns the current entry count and lookup counters.
func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
