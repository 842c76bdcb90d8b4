package embedding

import (
	"container/list"
	"slices"
	"sync"
	"sync/atomic"
)

// EmbeddingCache is an LRU of embeddings keyed by the exact text embedded.
// Stored vectors are private copies, so callers may modify what they pass in or get back.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front is most recently used

	hits   atomic.Int64
	misses atomic.Int64
}

type cached struct {
	text string
	vec  []float32
}

// NewEmbeddingCache creates a cache holding at most capacity embeddings (at least 1).
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: max(capacity, 1),
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns a copy of the embedding cached for text.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[text]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(el)
	return slices.Clone(el.Value.(*cached).vec), true
}

// Set caches vec for text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	vec = slices.Clone(vec)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[text]; ok {
		el.Value.(*cached).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.items[text] = c.order.PushFront(&cached{text: text, vec: vec})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cached).text)
	}
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the hit and miss counts since creation.
func (c *EmbeddingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
