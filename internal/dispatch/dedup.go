package dispatch

import (
	"sync"
	"time"
)

// Dedup suppresses repeat notifications for the same event key within a
// time-to-live window, so a flapping opportunity does not page anyone twice.
// It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // event key -> last notified
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a key as a duplicate when it was
// recorded within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether the key was recorded within the TTL window.
// A key that is not a duplicate is recorded on the way out.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[key]; ok {
		if now.Sub(last) < d.ttl {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// Cleanup removes entries older than the TTL. Call periodically to keep the
// map bounded.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
