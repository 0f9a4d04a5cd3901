package fetch

import "sync"

type memEntry struct {
	etag string
	size int64
}

// MemCache is an in-memory ValidatorCache. Safe for concurrent use.
type MemCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string]memEntry)}
}

func (c *MemCache) Validator(url string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[url]
	return e.etag, ok, nil
}

func (c *MemCache) SetValidator(url, etag string, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = memEntry{etag: etag, size: size}
	return nil
}

func (c *MemCache) ClearValidator(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
	return nil
}

var _ ValidatorCache = (*MemCache)(nil)
