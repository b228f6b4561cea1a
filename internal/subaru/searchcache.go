package subaru

import "sync"

// SearchKey identifies one cached query. The term is compared literally, so
// "Bash" and "bash" are distinct keys even in description mode.
type SearchKey struct {
	InDescription bool
	ExactMatch    bool
	Term          string
}

// SearchCache memoizes query results per key. It is only ever cleared
// explicitly; index rebuilds and applied transactions leave it untouched, so
// a repeated query can show pre-transaction results until the user clears
// the cache.
type SearchCache struct {
	mu      sync.Mutex
	results map[SearchKey][]PackageSpec
}

func NewSearchCache() *SearchCache {
	return &SearchCache{results: make(map[SearchKey][]PackageSpec)}
}

// Lookup returns the cached result for a key. A cached empty result is a
// hit, distinguished from a miss by ok.
func (c *SearchCache) Lookup(key SearchKey) ([]PackageSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	specs, ok := c.results[key]
	return specs, ok
}

// Store records a result for a key, replacing any previous entry.
func (c *SearchCache) Store(key SearchKey, specs []PackageSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = specs
}

// Clear drops every cached result.
func (c *SearchCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[SearchKey][]PackageSpec)
}

// Len returns the number of cached queries.
func (c *SearchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
