package realtime

import (
	"sync"
	"time"
)

// dedupKey identifies one delivered push event. The event type is part of
// the key so that a new/edit/delete sequence for the same message inside the
// TTL window is never mistaken for a redelivery.
type dedupKey struct {
	channelID int64
	messageID int64
	kind      string
}

// dedupCache suppresses redelivered push events within a TTL window. It only
// filters the event stream; post identity is still guarded by the store.
// Expired entries are swept opportunistically once the cache grows past a
// size threshold.
type dedupCache struct {
	ttl     time.Duration
	sweepAt int
	now     func() time.Time

	mu      sync.Mutex
	entries map[dedupKey]time.Time
}

func newDedupCache(ttl time.Duration, sweepAt int) *dedupCache {
	return &dedupCache{
		ttl:     ttl,
		sweepAt: sweepAt,
		now:     time.Now,
		entries: make(map[dedupKey]time.Time),
	}
}

// duplicate reports whether the event was already seen within the TTL
// window. When not a duplicate, the entry is recorded with the current time.
func (c *dedupCache) duplicate(channelID, messageID int64, kind string) bool {
	k := dedupKey{channelID: channelID, messageID: messageID, kind: kind}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seen, ok := c.entries[k]; ok && now.Sub(seen) < c.ttl {
		return true
	}
	c.entries[k] = now

	if len(c.entries) > c.sweepAt {
		for key, seen := range c.entries {
			if now.Sub(seen) >= c.ttl {
				delete(c.entries, key)
			}
		}
	}
	return false
}

func (c *dedupCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
