package market

import (
	"sync"
	"sync/atomic"
	"time"
)

// snapshotCache is a copy-on-write TTL cache. Readers load an immutable map
// via atomic.Value and never contend with writers; writers copy the map
// under a mutex.
type snapshotCache struct {
	mu      sync.Mutex
	current atomic.Value // map[string]cacheEntry
	clock   func() time.Time
}

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

func newSnapshotCache(clock func() time.Time) *snapshotCache {
	if clock == nil {
		clock = time.Now
	}
	c := &snapshotCache{clock: clock}
	c.current.Store(map[string]cacheEntry{})
	return c
}

func (c *snapshotCache) get(key string) (interface{}, bool) {
	m := c.current.Load().(map[string]cacheEntry)
	e, ok := m[key]
	if !ok || c.clock().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *snapshotCache) set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.current.Load().(map[string]cacheEntry)
	now := c.clock()
	next := make(map[string]cacheEntry, len(old)+1)
	for k, e := range old {
		if now.After(e.expires) {
			continue
		}
		next[k] = e
	}
	next[key] = cacheEntry{value: value, expires: now.Add(ttl)}
	c.current.Store(next)
}
