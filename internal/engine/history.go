package engine

import (
	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// historyRing is a FIFO buffer of closed opportunities with a fixed cap.
// When full, the oldest entry is dropped to admit the newest.
type historyRing struct {
	entries []domain.HistoryEntry
	cap     int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity < 1 {
		capacity = 1
	}
	return &historyRing{cap: capacity}
}

func (h *historyRing) push(e domain.HistoryEntry) {
	if len(h.entries) == h.cap {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.cap-1]
	}
	h.entries = append(h.entries, e)
}

func (h *historyRing) len() int { return len(h.entries) }

// recent returns up to limit entries, newest first. limit <= 0 means all.
func (h *historyRing) recent(limit int) []domain.HistoryEntry {
	n := len(h.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.HistoryEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = h.entries[n-1-i]
	}
	return out
}

// all returns every entry oldest first, for snapshot export.
func (h *historyRing) all() []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
