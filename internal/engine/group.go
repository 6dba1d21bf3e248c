package engine

import (
	"sort"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
	"github.com/alanyoungcy/surebetbot/internal/resolve"
)

// sourceQuote is one source's live record inside a group, oriented onto the
// group's canonical sides. swapped means the quote's outcomeA is the group's
// sideB.
type sourceQuote struct {
	quote     domain.PriceQuote
	swapped   bool
	refreshed time.Time
}

func (s sourceQuote) priceA() float64 {
	if s.swapped {
		return s.quote.PriceB
	}
	return s.quote.PriceA
}

func (s sourceQuote) priceB() float64 {
	if s.swapped {
		return s.quote.PriceA
	}
	return s.quote.PriceB
}

// eventGroup holds the live quotes mapped to one canonical identity, at most
// one per source.
type eventGroup struct {
	key      domain.EventKey
	sideA    string
	sideB    string
	bySource map[string]*sourceQuote
	updated  time.Time
}

// groupStore is the event group store: canonical identity -> group, plus a
// (source, sourceEventId) index for replace semantics. It is not safe for
// concurrent use; the engine serializes access.
type groupStore struct {
	groups  map[domain.EventKey]*eventGroup
	byLocal map[string]domain.EventKey
}

func newGroupStore() *groupStore {
	return &groupStore{
		groups:  make(map[domain.EventKey]*eventGroup),
		byLocal: make(map[string]domain.EventKey),
	}
}

type insertResult struct {
	key       domain.EventKey
	newGroup  bool
	replaced  bool               // a live record from this source was superseded
	relabeled bool               // same source arrived under a new sourceEventId
	prev      *domain.PriceQuote // the record that was replaced, when any
	movedFrom *domain.EventKey   // the source reused an id that lived in another group
}

func localKey(source, sourceEventID string) string {
	return source + "|" + sourceEventID
}

// insert places a resolved quote into its group, replacing any live record
// from the same source. A (source, sourceEventId) pair that previously
// resolved to a different identity is pulled out of its old group first so
// the id never lives in two groups at once.
func (s *groupStore) insert(res resolve.Resolution, q domain.PriceQuote, now time.Time) insertResult {
	out := insertResult{key: res.Key}
	lk := localKey(q.Source, q.SourceEventID)

	if oldKey, ok := s.byLocal[lk]; ok && oldKey != res.Key {
		if removed := s.removeQuote(oldKey, q.Source); removed {
			moved := oldKey
			out.movedFrom = &moved
		}
	}

	g, ok := s.groups[res.Key]
	if !ok {
		g = &eventGroup{
			key:      res.Key,
			sideA:    res.SideA,
			sideB:    res.SideB,
			bySource: make(map[string]*sourceQuote),
		}
		s.groups[res.Key] = g
		out.newGroup = true
	}

	if prev, ok := g.bySource[q.Source]; ok {
		out.replaced = true
		old := prev.quote
		out.prev = &old
		if old.SourceEventID != q.SourceEventID {
			out.relabeled = true
			delete(s.byLocal, localKey(q.Source, old.SourceEventID))
		}
	}

	g.bySource[q.Source] = &sourceQuote{quote: q, swapped: res.Swapped, refreshed: now}
	g.updated = now
	s.byLocal[lk] = res.Key
	return out
}

// removeQuote drops one source's record from a group, deleting the group
// when it empties. Reports whether anything was removed.
func (s *groupStore) removeQuote(key domain.EventKey, source string) bool {
	g, ok := s.groups[key]
	if !ok {
		return false
	}
	sq, ok := g.bySource[source]
	if !ok {
		return false
	}
	delete(s.byLocal, localKey(source, sq.quote.SourceEventID))
	delete(g.bySource, source)
	if len(g.bySource) == 0 {
		delete(s.groups, key)
	}
	return true
}

// evictStale removes every record whose last refresh is before cutoff and
// returns the identities it touched. Emptied groups are deleted; their keys
// are still reported so dependent opportunities can be invalidated.
func (s *groupStore) evictStale(cutoff time.Time) (touched []domain.EventKey, evicted int) {
	for key, g := range s.groups {
		dirty := false
		for source, sq := range g.bySource {
			if sq.refreshed.Before(cutoff) {
				delete(s.byLocal, localKey(source, sq.quote.SourceEventID))
				delete(g.bySource, source)
				evicted++
				dirty = true
			}
		}
		if len(g.bySource) == 0 {
			delete(s.groups, key)
		}
		if dirty {
			touched = append(touched, key)
		}
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	return touched, evicted
}

// best recomputes the best-price view for one identity. It is a pure
// derivation from the group's live quotes; nothing here survives the group.
func (s *groupStore) best(key domain.EventKey) (domain.BestPrices, bool) {
	g, ok := s.groups[key]
	if !ok || len(g.bySource) == 0 {
		return domain.BestPrices{}, false
	}

	// Sources are walked in sorted order so a tied best price always lands
	// on the same source; otherwise repricing after a tie could swap legs
	// and close a live opportunity that did not really change.
	sources := make([]string, 0, len(g.bySource))
	for source := range g.bySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	out := domain.BestPrices{Key: g.key, SideA: g.sideA, SideB: g.sideB, UpdatedAt: g.updated}
	for _, source := range sources {
		sq := g.bySource[source]
		if pa := sq.priceA(); pa > out.A.Price {
			out.A = domain.PricePoint{Source: source, Price: pa}
		}
		if pb := sq.priceB(); pb > out.B.Price {
			out.B = domain.PricePoint{Source: source, Price: pb}
		}
		if sq.quote.HasDraw() && (out.Draw == nil || sq.quote.PriceDraw > out.Draw.Price) {
			out.Draw = &domain.PricePoint{Source: source, Price: sq.quote.PriceDraw}
		}
	}
	return out, true
}

func (s *groupStore) sourceCount(key domain.EventKey) int {
	g, ok := s.groups[key]
	if !ok {
		return 0
	}
	return len(g.bySource)
}

func (s *groupStore) len() int { return len(s.groups) }

// liveQuotes returns every live record ordered by identity then source, for
// snapshot export.
func (s *groupStore) liveQuotes() []domain.PriceQuote {
	keys := make([]domain.EventKey, 0, len(s.groups))
	for key := range s.groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []domain.PriceQuote
	for _, key := range keys {
		g := s.groups[key]
		sources := make([]string, 0, len(g.bySource))
		for source := range g.bySource {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		for _, source := range sources {
			out = append(out, g.bySource[source].quote)
		}
	}
	return out
}

// summary builds the API view of one group; withQuotes includes the live
// records for detail lookups.
func (s *groupStore) summary(key domain.EventKey, withQuotes bool) (domain.EventSummary, bool) {
	g, ok := s.groups[key]
	if !ok {
		return domain.EventSummary{}, false
	}
	sum := domain.EventSummary{
		Key:       g.key,
		SideA:     g.sideA,
		SideB:     g.sideB,
		UpdatedAt: g.updated,
	}
	for source, sq := range g.bySource {
		sum.Sources = append(sum.Sources, source)
		if sq.quote.HasDraw() {
			sum.HasDraw = true
		}
		if withQuotes {
			sum.Quotes = append(sum.Quotes, sq.quote)
		}
	}
	sort.Strings(sum.Sources)
	if withQuotes {
		sort.Slice(sum.Quotes, func(i, j int) bool { return sum.Quotes[i].Source < sum.Quotes[j].Source })
	}
	if best, ok := s.best(key); ok {
		sum.Best = &best
	}
	return sum, true
}

// summaries lists every group ordered by most recently updated.
func (s *groupStore) summaries() []domain.EventSummary {
	out := make([]domain.EventSummary, 0, len(s.groups))
	for key := range s.groups {
		sum, _ := s.summary(key, false)
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
