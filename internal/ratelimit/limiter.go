// Package ratelimit provides sliding-window admission control per requester
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks request timestamps per requester inside a trailing
// window. It is safe for concurrent use; the lock covers bookkeeping
// only, never I/O.
type Limiter struct {
	mu      sync.Mutex
	quota   int
	window  time.Duration
	windows map[int64][]time.Time
	now     func() time.Time
}

// New creates a limiter admitting at most quota requests per requester
// within the trailing window.
func New(quota int, window time.Duration) *Limiter {
	return &Limiter{
		quota:   quota,
		window:  window,
		windows: make(map[int64][]time.Time),
		now:     time.Now,
	}
}

// Allow checks admission for the given requester. Entries older than
// the window are pruned first; when the remaining count is at or above
// the quota the request is rejected without being recorded, and the
// returned duration says how long until the oldest entry leaves the
// window. Otherwise the request is recorded and admitted.
func (l *Limiter) Allow(userID int64) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	entries := l.windows[userID]
	pruned := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= l.quota {
		l.windows[userID] = pruned
		retryAfter := pruned[0].Add(l.window).Sub(now)
		return false, retryAfter
	}

	l.windows[userID] = append(pruned, now)
	return true, 0
}

// Reset clears the window for a single requester
func (l *Limiter) Reset(userID int64) {
	l.mu.Lock()
	delete(l.windows, userID)
	l.mu.Unlock()
}

// Len reports how many entries currently sit in the requester's window
func (l *Limiter) Len(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows[userID])
}
