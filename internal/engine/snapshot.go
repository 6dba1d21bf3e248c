package engine

import (
	"log/slog"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// Snapshot exports the restorable engine state: every live quote plus the
// history ring in insertion order. Active opportunities are derived state
// and are rebuilt on restore, never exported.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.Snapshot{
		SavedAt: time.Now().UTC(),
		Quotes:  e.groups.liveQuotes(),
		History: e.history.all(),
	}
}

// ImportHistory appends entries to the history ring in the order given and
// returns how many were taken. Unlike Restore it is safe while the engine is
// running: each push happens under the state lock, and the ring evicts its
// oldest entries as usual once full.
func (e *Engine) ImportHistory(entries []domain.HistoryEntry) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		e.history.push(entry)
	}
	return len(entries)
}

// Restore seeds the engine from a snapshot. History entries are reinstated
// verbatim; quotes replay through the normal validated path with their
// original ObservedAt, so anything past the staleness window is evicted by
// the first sweep rather than resurrected. The rebuilt active set comes from
// re-evaluating every restored group; no update events are emitted, so
// subscribers only ever see post-restore transitions.
//
// Call before Run; Restore does not take the ingestion queue into account.
func (e *Engine) Restore(snap domain.Snapshot) (quotes, dropped int) {
	now := time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range snap.History {
		e.history.push(entry)
	}

	for _, q := range snap.Quotes {
		if err := q.Validate(now); err != nil {
			dropped++
			continue
		}
		res, err := e.resolver.Resolve(q.OutcomeA, q.OutcomeB, q.ObservedAt)
		if err != nil {
			dropped++
			continue
		}
		e.groups.insert(res, q, q.ObservedAt)
		quotes++
	}

	for key := range e.groups.groups {
		_ = e.reprice(key, now)
	}

	e.logger.Info("snapshot restored",
		slog.Int("quotes", quotes),
		slog.Int("dropped", dropped),
		slog.Int("history", len(snap.History)),
		slog.Int("active", len(e.active)),
		slog.Time("saved_at", snap.SavedAt),
	)
	return quotes, dropped
}
