package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

type fakeHistoryStore struct {
	entries []domain.HistoryEntry
	err     error
}

func (f *fakeHistoryStore) Insert(_ context.Context, e domain.HistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistoryStore) ListRecent(context.Context, int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeHistoryStore) ListBefore(context.Context, time.Time) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeHistoryStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeAuditStore struct{ events []string }

func (f *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditStore) List(context.Context, int) ([]domain.AuditEntry, error) { return nil, nil }

type fakeBus struct {
	published map[string]int
	streamed  map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string]int), streamed: make(map[string]int)}
}

func (f *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	f.published[channel]++
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (f *fakeBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	f.streamed[stream]++
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeBestCache struct {
	set         []domain.EventKey
	invalidated []domain.EventKey
}

func (f *fakeBestCache) SetBest(_ context.Context, best domain.BestPrices) error {
	f.set = append(f.set, best.Key)
	return nil
}

func (f *fakeBestCache) GetBest(context.Context, domain.EventKey) (domain.BestPrices, error) {
	return domain.BestPrices{}, domain.ErrNotFound
}

func (f *fakeBestCache) Invalidate(_ context.Context, key domain.EventKey) error {
	f.invalidated = append(f.invalidated, key)
	return nil
}

type fakeNotifier struct{ titles []string }

func (f *fakeNotifier) Notify(_ context.Context, _, title, _ string) error {
	f.titles = append(f.titles, title)
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func closedEvent(typ domain.EngineEventType, key domain.EventKey, reason domain.CloseReason) domain.EngineEvent {
	return domain.EngineEvent{
		Type: typ,
		Key:  key,
		At:   time.Now().UTC(),
		History: &domain.HistoryEntry{
			Opportunity: domain.Opportunity{ID: "opp-1", EventKey: key, ProfitPercent: 6.9},
			ClosedAt:    time.Now().UTC(),
			Reason:      reason,
		},
	}
}

func createdEvent(key domain.EventKey) domain.EngineEvent {
	return domain.EngineEvent{
		Type: domain.EventOpportunityCreated,
		Key:  key,
		At:   time.Now().UTC(),
		Opportunity: &domain.Opportunity{
			ID: "opp-1", EventKey: key, SideA: "arsenal", SideB: "chelsea",
			ProfitPercent: 6.9, Payout: 1.074,
			Legs: []domain.OpportunityLeg{
				{Outcome: domain.OutcomeA, Source: "betfair", Price: 2.10, Stake: 0.51},
				{Outcome: domain.OutcomeB, Source: "pinnacle", Price: 2.20, Stake: 0.49},
			},
		},
	}
}

func newTestDispatcher(cfg Config) (*Dispatcher, chan domain.EngineEvent) {
	events := make(chan domain.EngineEvent, 16)
	return New(events, cfg, testLogger()), events
}

func TestHandle_CreatedFansOutAndNotifies(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	bus := newFakeBus()
	n := &fakeNotifier{}
	d.SetBus(bus)
	d.SetNotifier(n)

	d.handle(context.Background(), createdEvent("k1"))

	if bus.published[ChannelOpportunity] != 1 {
		t.Errorf("opportunity channel publishes = %d, want 1", bus.published[ChannelOpportunity])
	}
	if bus.streamed[DefaultOpportunityStream] != 1 {
		t.Errorf("stream appends = %d, want 1", bus.streamed[DefaultOpportunityStream])
	}
	if len(n.titles) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.titles))
	}
	if n.titles[0] != "Arbitrage 6.90%: arsenal vs chelsea" {
		t.Errorf("title = %q", n.titles[0])
	}
}

func TestHandle_CloseEventRecordsOnce(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	hs := &fakeHistoryStore{}
	as := &fakeAuditStore{}
	bus := newFakeBus()
	d.SetPersistence(hs, as)
	d.SetBus(bus)

	d.handle(context.Background(), closedEvent(domain.EventOpportunityExpired, "k1", domain.CloseReasonExpired))

	if len(hs.entries) != 1 || hs.entries[0].Reason != domain.CloseReasonExpired {
		t.Fatalf("history store entries = %+v", hs.entries)
	}
	if len(as.events) != 1 || as.events[0] != string(domain.EventOpportunityExpired) {
		t.Errorf("audit events = %v", as.events)
	}
	if bus.published[ChannelHistory] != 1 || bus.published[ChannelOpportunity] != 1 {
		t.Errorf("publishes = %v", bus.published)
	}
	if len(bus.streamed) != 0 {
		t.Errorf("expired event should not append to the opportunity stream: %v", bus.streamed)
	}
}

func TestHandle_SupersededRecordsAndNotifies(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	hs := &fakeHistoryStore{}
	n := &fakeNotifier{}
	d.SetPersistence(hs, nil)
	d.SetNotifier(n)

	ev := closedEvent(domain.EventOpportunitySuperseded, "k1", domain.CloseReasonSuperseded)
	ev.Opportunity = createdEvent("k1").Opportunity
	d.handle(context.Background(), ev)

	if len(hs.entries) != 1 || hs.entries[0].Reason != domain.CloseReasonSuperseded {
		t.Fatalf("history store entries = %+v", hs.entries)
	}
	if len(n.titles) != 1 {
		t.Errorf("notifications = %d, want 1", len(n.titles))
	}
}

func TestHandle_PriceEventsDriveTheMirror(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	best := &fakeBestCache{}
	d.SetBestMirror(best)

	d.handle(context.Background(), domain.EngineEvent{
		Type: domain.EventPricesUpdated,
		Key:  "k1",
		Best: &domain.BestPrices{Key: "k1"},
	})
	d.handle(context.Background(), domain.EngineEvent{Type: domain.EventPricesRemoved, Key: "k1"})

	if len(best.set) != 1 || best.set[0] != "k1" {
		t.Errorf("mirror writes = %v", best.set)
	}
	if len(best.invalidated) != 1 || best.invalidated[0] != "k1" {
		t.Errorf("mirror invalidations = %v", best.invalidated)
	}
}

func TestNotify_DedupSuppressesRepeatKeys(t *testing.T) {
	d, _ := newTestDispatcher(Config{NotifyDedupTTL: time.Hour})
	n := &fakeNotifier{}
	d.SetNotifier(n)

	d.handle(context.Background(), createdEvent("k1"))
	d.handle(context.Background(), createdEvent("k1"))
	d.handle(context.Background(), createdEvent("k2"))

	if len(n.titles) != 2 {
		t.Fatalf("notifications = %d, want 2 (k1 deduped)", len(n.titles))
	}
}

func TestHandle_SinkFailureIsContained(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	hs := &fakeHistoryStore{err: errors.New("pg down")}
	as := &fakeAuditStore{}
	d.SetPersistence(hs, as)

	d.handle(context.Background(), closedEvent(domain.EventOpportunityInvalidated, "k1", domain.CloseReasonInvalidated))

	// The audit sink must still run after the history failure.
	if len(as.events) != 1 {
		t.Errorf("audit events = %v, want the invalidation logged", as.events)
	}
}

func TestRun_ConsumesUntilStreamCloses(t *testing.T) {
	d, events := newTestDispatcher(Config{})
	n := &fakeNotifier{}
	d.SetNotifier(n)

	events <- createdEvent("k1")
	events <- createdEvent("k2")
	close(events)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil on closed stream", err)
	}
	if len(n.titles) != 2 {
		t.Errorf("notifications = %d, want 2", len(n.titles))
	}
}

func TestRun_DrainsBufferedEventsOnCancel(t *testing.T) {
	d, events := newTestDispatcher(Config{})
	n := &fakeNotifier{}
	d.SetNotifier(n)

	events <- createdEvent("k1")
	close(events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The loop may see the cancellation or the closed stream first; either
	// way the buffered event must have been handled.
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if len(n.titles) != 1 {
		t.Errorf("notifications = %d, want the buffered event drained", len(n.titles))
	}
}

func TestDedup_ExpiresAfterTTL(t *testing.T) {
	dd := NewDedup(5 * time.Millisecond)

	if dd.IsDuplicate("k1") {
		t.Fatal("first sighting flagged as duplicate")
	}
	if !dd.IsDuplicate("k1") {
		t.Fatal("second sighting inside TTL not flagged")
	}

	time.Sleep(10 * time.Millisecond)
	if dd.IsDuplicate("k1") {
		t.Fatal("sighting after TTL still flagged")
	}

	time.Sleep(10 * time.Millisecond)
	dd.Cleanup()
	dd.mu.Lock()
	n := len(dd.seen)
	dd.mu.Unlock()
	if n != 0 {
		t.Errorf("cleanup left %d entries", n)
	}
}
