package knowledge

import (
	"sync"
	"time"
)

// rateLimiter enforces spec.md §4.7's per-author rolling-hour store() cap
// (default 20) with an in-process sliding window — a straightforward
// generalization of the bounded-history pattern used elsewhere
// (history_bound_per_agent), since no single teacher file covers rate
// limiting directly.
type rateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	byAuthor map[string][]time.Time
}

func newRateLimiter(window time.Duration, limit int) *rateLimiter {
	return &rateLimiter{window: window, limit: limit, byAuthor: make(map[string][]time.Time)}
}

// Allow records one attempt and reports whether it is within the limit; on
// rejection it also returns the duration until the oldest attempt in the
// window expires, for a retry-after hint.
func (r *rateLimiter) Allow(authorID string, now time.Time) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	attempts := r.byAuthor[authorID]
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		retryAfter := kept[0].Add(r.window).Sub(now)
		r.byAuthor[authorID] = kept
		return false, retryAfter
	}

	kept = append(kept, now)
	r.byAuthor[authorID] = kept
	return true, 0
}
