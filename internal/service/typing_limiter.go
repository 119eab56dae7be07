package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const typingLimiterIdleTTL = 5 * time.Minute

type typingEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// typingLimiter coalesces repeated typing=true updates per conversation side.
// Entries idle longer than idleTTL are swept on later calls.
type typingLimiter struct {
	mu        sync.Mutex
	entries   map[string]*typingEntry
	rps       float64
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
}

func newTypingLimiter(rps float64, burst int) *typingLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 2
	}
	return &typingLimiter{
		entries: make(map[string]*typingEntry),
		rps:     rps,
		burst:   burst,
		idleTTL: typingLimiterIdleTTL,
	}
}

// Allow reports whether another repeat for key may go through at now.
func (t *typingLimiter) Allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweep(now)

	entry, ok := t.entries[key]
	if !ok {
		entry = &typingEntry{limiter: rate.NewLimiter(rate.Limit(t.rps), t.burst)}
		t.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Forget drops the entry for key, used once the flag is cleared.
func (t *typingLimiter) Forget(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

func (t *typingLimiter) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.idleTTL {
		return
	}
	t.lastSweep = now
	for key, entry := range t.entries {
		if now.Sub(entry.lastSeen) >= t.idleTTL {
			delete(t.entries, key)
		}
	}
}
