package store

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/willf/bloom"
)

// LRUCache fronts the database with a bounded in-memory cache. The bloom
// filter short-circuits lookups for keys that were never written, which is
// the common case when the node checks for unknown blocks.
type LRUCache struct {
	cache       *lru.Cache[string, interface{}]
	bloomFilter *bloom.BloomFilter
	mutex       sync.RWMutex
}

// NewLRUCache creates a new LRU cache with a Bloom filter.
func NewLRUCache(size int, expectedItems uint, falsePositiveRate float64) (*LRUCache, error) {
	c, err := lru.New[string, interface{}](size)
	if err != nil {
		return nil, err
	}

	bf := bloom.NewWithEstimates(expectedItems, falsePositiveRate)

	return &LRUCache{
		cache:       c,
		bloomFilter: bf,
	}, nil
}

// Get retrieves a value from the cache.
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.bloomFilter.TestString(key) {
		return nil, false
	}
	return c.cache.Get(key)
}

// Add adds a value to the cache.
func (c *LRUCache) Add(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.bloomFilter.AddString(key)
	c.cache.Add(key, value)
}

// Remove removes a value from the cache. The bloom filter keeps the key;
// the next Get falls through to the database.
func (c *LRUCache) Remove(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache.Remove(key)
}

// Purge clears all items from the cache.
func (c *LRUCache) Purge() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache.Purge()
	c.bloomFilter.ClearAll()
}
