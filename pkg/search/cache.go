package search

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/papercomputeco/engram/pkg/memory"
)

const (
	cacheTTL        = 5 * time.Minute
	cacheMaxEntries = 100
)

// parseCache holds parsed memories keyed by file path so repeated searches
// do not re-read the whole store. Entries expire after cacheTTL and the
// least recently used entry is evicted past cacheMaxEntries.
type parseCache struct {
	lru *expirable.LRU[string, *memory.Memory]
}

func newParseCache() *parseCache {
	return &parseCache{
		lru: expirable.NewLRU[string, *memory.Memory](cacheMaxEntries, nil, cacheTTL),
	}
}

func (c *parseCache) get(path string) (*memory.Memory, bool) {
	return c.lru.Get(path)
}

func (c *parseCache) add(path string, mem *memory.Memory) {
	c.lru.Add(path, mem)
}

func (c *parseCache) invalidate(path string) {
	c.lru.Remove(path)
}

func (c *parseCache) purge() {
	c.lru.Purge()
}

func (c *parseCache) len() int {
	return c.lru.Len()
}
