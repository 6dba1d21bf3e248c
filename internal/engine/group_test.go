package engine

import (
	"testing"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
	"github.com/alanyoungcy/surebetbot/internal/resolve"
)

var groupBase = time.Date(2025, 10, 12, 12, 0, 0, 0, time.UTC)

func resolution(key domain.EventKey, sideA, sideB string, swapped bool) resolve.Resolution {
	return resolve.Resolution{Key: key, SideA: sideA, SideB: sideB, Swapped: swapped}
}

func storeQuote(source, id string, pa, pb float64) domain.PriceQuote {
	return domain.PriceQuote{
		Source:        source,
		SourceEventID: id,
		OutcomeA:      "arsenal",
		OutcomeB:      "chelsea",
		PriceA:        pa,
		PriceB:        pb,
		ObservedAt:    groupBase,
	}
}

func TestGroupStore_ReplaceSameSourceEventID(t *testing.T) {
	s := newGroupStore()
	res := resolution("k1", "arsenal", "chelsea", false)

	first := s.insert(res, storeQuote("betfair", "e1", 2.10, 1.95), groupBase)
	if !first.newGroup || first.replaced {
		t.Fatalf("first insert: newGroup=%v replaced=%v, want true/false", first.newGroup, first.replaced)
	}

	second := s.insert(res, storeQuote("betfair", "e1", 2.30, 1.90), groupBase.Add(time.Minute))
	if second.newGroup || !second.replaced || second.relabeled {
		t.Fatalf("second insert: newGroup=%v replaced=%v relabeled=%v, want false/true/false",
			second.newGroup, second.replaced, second.relabeled)
	}
	if second.prev == nil || second.prev.PriceA != 2.10 {
		t.Fatalf("second insert did not surface the replaced record: %+v", second.prev)
	}

	best, ok := s.best("k1")
	if !ok {
		t.Fatal("best: group missing")
	}
	if best.A.Price != 2.30 || best.A.Source != "betfair" {
		t.Errorf("best A = %+v, want 2.30 from betfair", best.A)
	}
	if got := s.sourceCount("k1"); got != 1 {
		t.Errorf("sourceCount = %d, want 1", got)
	}
}

func TestGroupStore_RelabelSameIdentity(t *testing.T) {
	s := newGroupStore()
	res := resolution("k1", "arsenal", "chelsea", false)

	s.insert(res, storeQuote("betfair", "e1", 2.10, 1.95), groupBase)
	out := s.insert(res, storeQuote("betfair", "e2", 2.10, 1.95), groupBase.Add(time.Minute))

	if !out.replaced || !out.relabeled {
		t.Fatalf("relabel insert: replaced=%v relabeled=%v, want true/true", out.replaced, out.relabeled)
	}
	if _, ok := s.byLocal[localKey("betfair", "e1")]; ok {
		t.Error("stale local index entry for e1 survived the relabel")
	}
	if key, ok := s.byLocal[localKey("betfair", "e2")]; !ok || key != "k1" {
		t.Errorf("byLocal[e2] = %q ok=%v, want k1", key, ok)
	}
}

func TestGroupStore_ReusedIDMovesBetweenIdentities(t *testing.T) {
	s := newGroupStore()

	s.insert(resolution("k1", "arsenal", "chelsea", false), storeQuote("betfair", "e1", 2.10, 1.95), groupBase)
	out := s.insert(resolution("k2", "everton", "leeds united", false), storeQuote("betfair", "e1", 1.80, 2.05), groupBase.Add(time.Minute))

	if out.movedFrom == nil || *out.movedFrom != "k1" {
		t.Fatalf("movedFrom = %v, want k1", out.movedFrom)
	}
	if _, ok := s.groups["k1"]; ok {
		t.Error("emptied group k1 was not deleted")
	}
	if key := s.byLocal[localKey("betfair", "e1")]; key != "k2" {
		t.Errorf("byLocal[e1] = %q, want k2", key)
	}
	if got := s.sourceCount("k2"); got != 1 {
		t.Errorf("sourceCount(k2) = %d, want 1", got)
	}
}

func TestGroupStore_BestHonorsSwappedOrientation(t *testing.T) {
	s := newGroupStore()

	// betfair quotes (arsenal, chelsea); pinnacle quoted the pair reversed,
	// so its outcomeA prices belong to the group's sideB.
	s.insert(resolution("k1", "arsenal", "chelsea", false), storeQuote("betfair", "e1", 2.10, 1.95), groupBase)

	q := domain.PriceQuote{
		Source:        "pinnacle",
		SourceEventID: "p9",
		OutcomeA:      "chelsea",
		OutcomeB:      "arsenal",
		PriceA:        2.20,
		PriceB:        1.90,
		ObservedAt:    groupBase,
	}
	s.insert(resolution("k1", "arsenal", "chelsea", true), q, groupBase)

	best, ok := s.best("k1")
	if !ok {
		t.Fatal("best: group missing")
	}
	if best.A.Source != "betfair" || best.A.Price != 2.10 {
		t.Errorf("best A = %+v, want 2.10 from betfair", best.A)
	}
	if best.B.Source != "pinnacle" || best.B.Price != 2.20 {
		t.Errorf("best B = %+v, want 2.20 from pinnacle", best.B)
	}
}

func TestGroupStore_BestPicksMaxPerSideAndDraw(t *testing.T) {
	s := newGroupStore()
	res := resolution("k1", "arsenal", "chelsea", false)

	qx := storeQuote("betfair", "e1", 2.10, 1.95)
	qx.PriceDraw = 3.40
	qy := storeQuote("pinnacle", "e2", 1.90, 2.20)
	qy.PriceDraw = 3.60

	s.insert(res, qx, groupBase)
	s.insert(res, qy, groupBase)

	best, _ := s.best("k1")
	if best.A.Price != 2.10 || best.B.Price != 2.20 {
		t.Errorf("best A/B = %.2f/%.2f, want 2.10/2.20", best.A.Price, best.B.Price)
	}
	if best.Draw == nil || best.Draw.Price != 3.60 || best.Draw.Source != "pinnacle" {
		t.Errorf("best draw = %+v, want 3.60 from pinnacle", best.Draw)
	}
}

func TestGroupStore_BestTieIsDeterministic(t *testing.T) {
	s := newGroupStore()
	res := resolution("k1", "arsenal", "chelsea", false)

	// Both sources quote the same best price for side A. The winner must not
	// depend on map iteration order or a live opportunity's legs would flap.
	s.insert(res, storeQuote("pinnacle", "e2", 2.10, 2.20), groupBase)
	s.insert(res, storeQuote("betfair", "e1", 2.10, 1.95), groupBase)

	for i := 0; i < 20; i++ {
		best, ok := s.best("k1")
		if !ok {
			t.Fatal("best: group missing")
		}
		if best.A.Source != "betfair" {
			t.Fatalf("tied best A from %q, want betfair every time", best.A.Source)
		}
	}
}

func TestGroupStore_EvictStale(t *testing.T) {
	s := newGroupStore()
	res := resolution("k1", "arsenal", "chelsea", false)

	s.insert(res, storeQuote("betfair", "e1", 2.10, 1.95), groupBase)
	s.insert(res, storeQuote("pinnacle", "e2", 1.90, 2.20), groupBase.Add(10*time.Minute))

	touched, evicted := s.evictStale(groupBase.Add(5 * time.Minute))
	if evicted != 1 || len(touched) != 1 || touched[0] != "k1" {
		t.Fatalf("evictStale = (%v, %d), want ([k1], 1)", touched, evicted)
	}
	if got := s.sourceCount("k1"); got != 1 {
		t.Fatalf("sourceCount after evict = %d, want 1", got)
	}
	if _, ok := s.byLocal[localKey("betfair", "e1")]; ok {
		t.Error("evicted record left its local index entry behind")
	}

	// Second pass removes the survivor and the group with it.
	touched, evicted = s.evictStale(groupBase.Add(time.Hour))
	if evicted != 1 || len(touched) != 1 {
		t.Fatalf("second evictStale = (%v, %d), want 1 touched key", touched, evicted)
	}
	if s.len() != 0 {
		t.Errorf("store still holds %d groups", s.len())
	}
}

func TestGroupStore_SummaryAndLiveQuotes(t *testing.T) {
	s := newGroupStore()
	res := resolution("k1", "arsenal", "chelsea", false)

	qy := storeQuote("pinnacle", "e2", 1.90, 2.20)
	qy.PriceDraw = 3.50
	s.insert(res, qy, groupBase)
	s.insert(res, storeQuote("betfair", "e1", 2.10, 1.95), groupBase)

	sum, ok := s.summary("k1", true)
	if !ok {
		t.Fatal("summary: group missing")
	}
	if len(sum.Sources) != 2 || sum.Sources[0] != "betfair" || sum.Sources[1] != "pinnacle" {
		t.Errorf("sources = %v, want [betfair pinnacle]", sum.Sources)
	}
	if !sum.HasDraw {
		t.Error("summary lost the draw flag")
	}
	if sum.Best == nil || sum.Best.A.Price != 2.10 {
		t.Errorf("summary best = %+v", sum.Best)
	}
	if len(sum.Quotes) != 2 || sum.Quotes[0].Source != "betfair" {
		t.Errorf("quotes = %d entries, first from %q", len(sum.Quotes), sum.Quotes[0].Source)
	}

	live := s.liveQuotes()
	if len(live) != 2 || live[0].Source != "betfair" || live[1].Source != "pinnacle" {
		t.Errorf("liveQuotes order = %v", []string{live[0].Source, live[1].Source})
	}

	if _, ok := s.summary("nope", false); ok {
		t.Error("summary returned ok for unknown key")
	}
}
