package identity

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry is one session-cache slot: the bound identity plus the
// deadline after which it must be treated as a miss.
type cacheEntry struct {
	sessionKey string
	identityID string
	expiresAt  time.Time
}

// sessionCache is the in-process LRU+TTL session cache from spec.md §4.4
// path 1. Generalizes the teacher's ConnectionManager map+RWMutex registry
// (pkg/events/manager.go) to bounded LRU eviction, since an unbounded
// process-lifetime map of session keys would leak memory the way a
// connection registry never does (connections self-unregister on close;
// session keys don't).
type sessionCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxSize  int
	entries  map[string]*list.Element // sessionKey -> element
	eviction *list.List                // most-recently-used at the front
}

func newSessionCache(maxSize int, ttl time.Duration) *sessionCache {
	return &sessionCache{
		ttl:      ttl,
		maxSize:  maxSize,
		entries:  make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get returns the cached identity_id for a session key, or ("", false) on a
// miss or expiry.
func (c *sessionCache) Get(sessionKey string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[sessionKey]
	if !ok {
		return "", false
	}
	entry := el.Value.(*cacheEntry)
	if now.After(entry.expiresAt) {
		c.eviction.Remove(el)
		delete(c.entries, sessionKey)
		return "", false
	}
	c.eviction.MoveToFront(el)
	return entry.identityID, true
}

// Put inserts or refreshes a session-cache entry, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *sessionCache) Put(sessionKey, identityID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[sessionKey]; ok {
		entry := el.Value.(*cacheEntry)
		entry.identityID = identityID
		entry.expiresAt = now.Add(c.ttl)
		c.eviction.MoveToFront(el)
		return
	}

	entry := &cacheEntry{sessionKey: sessionKey, identityID: identityID, expiresAt: now.Add(c.ttl)}
	el := c.eviction.PushFront(entry)
	c.entries[sessionKey] = el

	if c.maxSize > 0 && c.eviction.Len() > c.maxSize {
		oldest := c.eviction.Back()
		if oldest != nil {
			c.eviction.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).sessionKey)
		}
	}
}

// Invalidate removes a session-cache entry, e.g. on explicit logout.
func (c *sessionCache) Invalidate(sessionKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[sessionKey]; ok {
		c.eviction.Remove(el)
		delete(c.entries, sessionKey)
	}
}
