package utils

import (
	"sync"
	"time"
)

// RateLimiter keeps one sliding window of hits per key.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
}

// NewRateLimiter allows at most limit hits per key inside window. A limit of
// zero or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

// Allow records a hit for key and reports whether it fits in the window.
// Rejected hits are not recorded.
func (r *RateLimiter) Allow(key string, now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	hits := trim(r.hits[key], now.Add(-r.window))
	if len(hits) >= r.limit {
		r.hits[key] = hits
		return false
	}
	r.hits[key] = append(hits, now)
	return true
}

// Prune drops keys with no hits left in the window.
func (r *RateLimiter) Prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	for key, hits := range r.hits {
		if hits = trim(hits, cutoff); len(hits) == 0 {
			delete(r.hits, key)
		} else {
			r.hits[key] = hits
		}
	}
}

func (r *RateLimiter) Keys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}

func trim(hits []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for _, hit := range hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	return hits[idx:]
}
