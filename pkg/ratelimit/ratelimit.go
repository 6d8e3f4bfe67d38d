package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window hit counter keyed by caller.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string][]time.Time
	window  time.Duration
	maxHits int
	now     func() time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
		now:     time.Now,
	}
}

// Allow records a hit for key and reports whether it fits in the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.prune(key, now)

	if len(valid) >= l.maxHits {
		return false
	}

	l.limits[key] = append(valid, now)
	return true
}

// Remaining reports how many hits key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	left := l.maxHits - len(l.prune(key, l.now()))
	if left < 0 {
		return 0
	}
	return left
}

func (l *Limiter) prune(key string, now time.Time) []time.Time {
	hits, exists := l.limits[key]
	if !exists {
		return nil
	}

	windowStart := now.Add(-l.window)
	valid := hits[:0]
	for _, hit := range hits {
		if hit.After(windowStart) {
			valid = append(valid, hit)
		}
	}
	if len(valid) == 0 {
		delete(l.limits, key)
		return nil
	}
	l.limits[key] = valid
	return valid
}
