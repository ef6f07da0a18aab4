package upstream

import "sync"

// ContextCache remembers a base URL's reported context-window size. It is
// write-once per key: once a base URL's n_ctx has been observed, later
// writes are ignored, since the value is a static server configuration
// property that cannot change without a restart. Grounded on the
// teacher's SessionCache (proxy/transform.go): a named struct wrapping a
// map behind an explicit sync.RWMutex rather than a raw sync.Map, keeping
// the same idiom the teacher uses for every concurrent-map-by-key cache in
// the codebase.
type ContextCache struct {
	mu    sync.RWMutex
	byURL map[string]int
}

// NewContextCache returns an empty cache.
func NewContextCache() *ContextCache {
	return &ContextCache{byURL: make(map[string]int)}
}

// Get returns the cached context total for baseURL, if one has been set.
func (c *ContextCache) Get(baseURL string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byURL[baseURL]
	return n, ok
}

// Set records baseURL's context total the first time it is called for a
// given key; subsequent calls for the same key are no-ops.
func (c *ContextCache) Set(baseURL string, nCtx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byURL[baseURL]; exists {
		return
	}
	c.byURL[baseURL] = nCtx
}
