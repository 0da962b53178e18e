package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionCache_GetMissThenHit(t *testing.T) {
	c := newSessionCache(10, time.Minute)
	now := time.Now()

	_, ok := c.Get("s1", now)
	assert.False(t, ok)

	c.Put("s1", "id-1", now)
	got, ok := c.Get("s1", now)
	assert.True(t, ok)
	assert.Equal(t, "id-1", got)
}

func TestSessionCache_ExpiresAfterTTL(t *testing.T) {
	c := newSessionCache(10, time.Minute)
	now := time.Now()
	c.Put("s1", "id-1", now)

	_, ok := c.Get("s1", now.Add(2*time.Minute))
	assert.False(t, ok)
}

func TestSessionCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newSessionCache(2, time.Hour)
	now := time.Now()

	c.Put("s1", "id-1", now)
	c.Put("s2", "id-2", now)
	// touch s1 so s2 becomes the LRU entry
	c.Get("s1", now)
	c.Put("s3", "id-3", now)

	_, ok := c.Get("s2", now)
	assert.False(t, ok, "s2 should have been evicted as least recently used")

	_, ok = c.Get("s1", now)
	assert.True(t, ok)
	_, ok = c.Get("s3", now)
	assert.True(t, ok)
}

func TestSessionCache_Invalidate(t *testing.T) {
	c := newSessionCache(10, time.Minute)
	now := time.Now()
	c.Put("s1", "id-1", now)
	c.Invalidate("s1")

	_, ok := c.Get("s1", now)
	assert.False(t, ok)
}
