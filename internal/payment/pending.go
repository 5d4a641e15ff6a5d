package payment

import (
	"sync"
	"time"
)

const (
	defaultPendingTTL     = 15 * time.Minute
	defaultPendingMaxSize = 10000
)

// pendingEntry tracks one unresolved reference. The orchestrator is the sole
// writer; entries exist only between the first PENDING observation and the
// reference's resolution.
type pendingEntry struct {
	polls    int
	lastSeen time.Time
}

// PendingTracker counts consecutive PENDING observations per reference id.
// Abandoned references are evicted on a TTL and the map is capped, so a
// reference that never resolves cannot grow the tracker without bound.
type PendingTracker struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	ttl     time.Duration
	maxSize int
}

// NewPendingTracker builds a tracker. Non-positive ttl or maxSize fall back to
// the defaults.
func NewPendingTracker(ttl time.Duration, maxSize int) *PendingTracker {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	if maxSize <= 0 {
		maxSize = defaultPendingMaxSize
	}
	return &PendingTracker{
		entries: make(map[string]*pendingEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Observe records one PENDING observation for the reference and returns the
// updated consecutive count.
func (t *PendingTracker) Observe(referenceID string) int {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictLocked(now)

	e, ok := t.entries[referenceID]
	if !ok {
		e = &pendingEntry{}
		t.entries[referenceID] = e
	}
	e.polls++
	e.lastSeen = now
	return e.polls
}

// Clear drops any counter held for the reference. Safe to call for references
// the tracker has never seen.
func (t *PendingTracker) Clear(referenceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, referenceID)
}

// Len reports the number of tracked references.
func (t *PendingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *PendingTracker) evictLocked(now time.Time) {
	for ref, e := range t.entries {
		if now.Sub(e.lastSeen) > t.ttl {
			delete(t.entries, ref)
		}
	}

	// Cap the map even when nothing is stale: drop the oldest entries.
	for len(t.entries) >= t.maxSize {
		oldestRef := ""
		var oldest time.Time
		for ref, e := range t.entries {
			if oldestRef == "" || e.lastSeen.Before(oldest) {
				oldestRef = ref
				oldest = e.lastSeen
			}
		}
		delete(t.entries, oldestRef)
	}
}
