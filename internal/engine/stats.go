package engine

import (
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// statsTracker accumulates ingestion counters plus a ring of recent receipt
// times for the quotes-per-minute figure. Not safe for concurrent use; the
// engine guards it with its own lock.
type statsTracker struct {
	startedAt time.Time
	ringSize  int

	totalQuotes    int64
	rejectedQuotes int64
	found          int64
	perSource      map[string]*domain.SourceStats
	receipts       []time.Time
}

func newStatsTracker(startedAt time.Time, ringSize int) *statsTracker {
	if ringSize < 2 {
		ringSize = 2
	}
	return &statsTracker{
		startedAt: startedAt,
		ringSize:  ringSize,
		perSource: make(map[string]*domain.SourceStats),
	}
}

func (t *statsTracker) source(name string) *domain.SourceStats {
	s, ok := t.perSource[name]
	if !ok {
		s = &domain.SourceStats{}
		t.perSource[name] = s
	}
	return s
}

func (t *statsTracker) recordQuote(source string, now time.Time) {
	t.totalQuotes++
	s := t.source(source)
	s.Quotes++
	s.LastQuoteAt = now
	if len(t.receipts) == t.ringSize {
		copy(t.receipts, t.receipts[1:])
		t.receipts = t.receipts[:t.ringSize-1]
	}
	t.receipts = append(t.receipts, now)
}

func (t *statsTracker) recordRejected(source string) {
	t.rejectedQuotes++
	if source != "" {
		t.source(source).Rejected++
	}
}

func (t *statsTracker) recordFound() { t.found++ }

// ratePerMinute derives throughput from the receipt ring: ring length over
// the span from the oldest retained receipt to now. Read-only.
func (t *statsTracker) ratePerMinute(now time.Time) float64 {
	if len(t.receipts) == 0 {
		return 0
	}
	span := now.Sub(t.receipts[0])
	if span <= 0 {
		return 0
	}
	return float64(len(t.receipts)) / span.Minutes()
}

func (t *statsTracker) snapshot(now time.Time, groups, knownTeams int, fuzzy int64, active, historySize int) domain.EngineStats {
	out := domain.EngineStats{
		StartedAt:           t.startedAt,
		UptimeSeconds:       int64(now.Sub(t.startedAt).Seconds()),
		TotalQuotes:         t.totalQuotes,
		RejectedQuotes:      t.rejectedQuotes,
		GroupCount:          groups,
		KnownTeams:          knownTeams,
		FuzzyMatches:        fuzzy,
		ActiveOpportunities: active,
		OpportunitiesFound:  t.found,
		HistorySize:         historySize,
		QuotesPerMinute:     t.ratePerMinute(now),
		PerSource:           make(map[string]domain.SourceStats, len(t.perSource)),
	}
	for name, s := range t.perSource {
		out.PerSource[name] = *s
	}
	return out
}
